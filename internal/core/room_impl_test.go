package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.full {
		return ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}

func newMember(id string) (MemberSession, *fakeConn) {
	conn := &fakeConn{}
	ident := domain.Identity{SubjectID: 1, DisplayName: id}
	return NewMemberSession(SessionID(id), domain.NewMember(ident, "lobby"), conn), conn
}

func TestRoom_AddRemove(t *testing.T) {
	r := NewRoomService("lobby")
	a, _ := newMember("a")
	b, _ := newMember("b")

	assert.Empty(t, r.AddMember(a))
	peers := r.AddMember(b)
	require.Len(t, peers, 1)
	assert.Equal(t, SessionID("a"), peers[0].ID())
	assert.Equal(t, 2, r.MemberCount())

	// re-adding is not a duplicate
	r.AddMember(b)
	assert.Equal(t, 2, r.MemberCount())

	removed, empty := r.RemoveMember("a")
	assert.True(t, removed)
	assert.False(t, empty)

	removed, empty = r.RemoveMember("a")
	assert.False(t, removed)
	assert.False(t, empty)

	removed, empty = r.RemoveMember("b")
	assert.True(t, removed)
	assert.True(t, empty)
}

func TestRoom_BroadcastReachesAllAndReportsDropped(t *testing.T) {
	r := NewRoomService("lobby")
	a, ca := newMember("a")
	b, cb := newMember("b")
	c, cc := newMember("c")
	r.AddMember(a)
	r.AddMember(b)
	r.AddMember(c)

	cb.Close()
	cc.full = true

	res := r.Broadcast(Frame("x"))
	assert.Equal(t, 1, res.SentTo)
	assert.Len(t, res.Dropped, 2)
	assert.Equal(t, []string{"x"}, ca.received())

	// the room itself does not evict
	assert.Equal(t, 3, r.MemberCount())
}

func TestRoom_BroadcastOrderPerMember(t *testing.T) {
	r := NewRoomService("lobby")
	a, ca := newMember("a")
	r.AddMember(a)

	for i := 0; i < 50; i++ {
		r.Broadcast(Frame(fmt.Sprint(i)))
	}
	got := ca.received()
	require.Len(t, got, 50)
	for i, f := range got {
		assert.Equal(t, fmt.Sprint(i), f)
	}
}

func TestRoom_MembersSnapshot(t *testing.T) {
	r := NewRoomService("lobby")
	a, _ := newMember("alice")
	r.AddMember(a)

	snap := r.MembersSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "alice", snap[0].DisplayName)
	assert.Equal(t, domain.RoomName("lobby"), r.Name())
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", SessionState(99).String())
}
