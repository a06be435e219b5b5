package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/archive"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/moderation"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var users = map[string]domain.Identity{
	"t1": {SubjectID: 1, DisplayName: "U1"},
	"t2": {SubjectID: 2, DisplayName: "U2"},
	"t3": {SubjectID: 3, DisplayName: "U3"},
}

var testVerifier = auth.VerifierFunc(func(credential string) (domain.Identity, error) {
	id, ok := users[credential]
	if !ok {
		return domain.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
})

type failingArchiver struct{ calls atomic.Int32 }

func (f *failingArchiver) Record(context.Context, domain.SubjectID, domain.RoomName, string) error {
	f.calls.Add(1)
	return errors.New("disk on fire")
}

type harness struct {
	srv  *httptest.Server
	orch *app.Orchestrator
}

func newHarness(t *testing.T, opts Options, archiver archive.Archiver) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if archiver == nil {
		archiver = archive.Nop{}
	}
	async := archive.NewAsync(archiver, time.Second)
	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Filter:   moderation.New([]string{"badword"}, 0),
		Archive:  async,
	}
	ctl := NewSignalWSController(orch, testVerifier, opts)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws/chat", func(c *gin.Context) { ctl.HandleChat(ctx, c) })
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = async.Stop(context.Background())
	})
	return &harness{srv: srv, orch: orch}
}

func (h *harness) url(query string) string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/chat?" + query
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(h.url(query), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func sendText(t *testing.T, ws *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(domain.Inbound{Text: text}))
}

// expectClose reads until the server closes and returns the close code.
func expectClose(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce.Code
	}
}

// joinPair connects U1 then U2 to lobby and consumes the join events.
func joinPair(t *testing.T, h *harness) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	u1 := h.dial(t, "room=lobby&token=t1")
	assert.Equal(t, domain.JoinEvent("U1"), readEvent(t, u1))

	u2 := h.dial(t, "room=lobby&token=t2")
	assert.Equal(t, domain.JoinEvent("U2"), readEvent(t, u1))
	assert.Equal(t, domain.JoinEvent("U1"), readEvent(t, u2))
	assert.Equal(t, domain.JoinEvent("U2"), readEvent(t, u2))
	return u1, u2
}

func memberCount(h *harness, room domain.RoomName) int {
	m, _ := h.orch.Rooms.Members(room)
	return len(m)
}

func TestChat_MessageReachesWholeRoom(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	u1, u2 := joinPair(t, h)

	sendText(t, u1, "hi")
	want := domain.MessageEvent("U1", "hi")
	assert.Equal(t, want, readEvent(t, u1))
	assert.Equal(t, want, readEvent(t, u2))
}

func TestChat_BlockedOnlyToSender(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	u1, u2 := joinPair(t, h)

	sendText(t, u1, "")
	assert.Equal(t, domain.ErrorEvent(domain.ReasonBlocked), readEvent(t, u1))

	sendText(t, u1, "BadWord here")
	assert.Equal(t, domain.ErrorEvent(domain.ReasonBlocked), readEvent(t, u1))

	// missing text decodes as empty
	require.NoError(t, u1.WriteMessage(websocket.TextMessage, []byte(`{"other":1}`)))
	assert.Equal(t, domain.ErrorEvent(domain.ReasonBlocked), readEvent(t, u1))

	// the next thing U2 sees is the following valid message, nothing before it
	sendText(t, u1, "ok")
	assert.Equal(t, domain.MessageEvent("U1", "ok"), readEvent(t, u2))
}

func TestChat_DisconnectAnnouncesLeave(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	u1, u2 := joinPair(t, h)

	require.NoError(t, u1.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = u1.Close()

	assert.Equal(t, domain.LeaveEvent("U1"), readEvent(t, u2))
	assert.Equal(t, 1, memberCount(h, "lobby"))

	sendText(t, u2, "alone")
	assert.Equal(t, domain.MessageEvent("U2", "alone"), readEvent(t, u2))
}

func TestChat_Unauthorized(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	u1 := h.dial(t, "room=lobby&token=t1")
	assert.Equal(t, domain.JoinEvent("U1"), readEvent(t, u1))

	for _, q := range []string{"room=lobby&token=nope", "room=lobby"} {
		ws := h.dial(t, q)
		assert.Equal(t, CloseUnauthorized, expectClose(t, ws), q)
	}
	assert.Equal(t, 1, memberCount(h, "lobby"))
	assert.Equal(t, 1, h.orch.Registry.Count())

	// no join was announced for the rejected connections
	sendText(t, u1, "after")
	assert.Equal(t, domain.MessageEvent("U1", "after"), readEvent(t, u1))
}

func TestChat_JoinLargerThanSendBuffer(t *testing.T) {
	const buffer = 4
	h := newHarness(t, Options{SendBuffer: buffer}, nil)

	existing := 3 * buffer
	for i := 0; i < existing; i++ {
		ws := h.dial(t, "room=big&token=t1")
		// presence replay plus its own join
		for j := 0; j <= i; j++ {
			readEvent(t, ws)
		}
	}
	require.Equal(t, existing, memberCount(h, "big"))

	late := h.dial(t, "room=big&token=t2")
	for i := 0; i < existing; i++ {
		assert.Equal(t, domain.JoinEvent("U1"), readEvent(t, late))
	}
	assert.Equal(t, domain.JoinEvent("U2"), readEvent(t, late))
	assert.Equal(t, existing+1, memberCount(h, "big"))

	sendText(t, late, "made it")
	assert.Equal(t, domain.MessageEvent("U2", "made it"), readEvent(t, late))
}

func TestChat_ArchiverFailureDoesNotAffectDelivery(t *testing.T) {
	failing := &failingArchiver{}
	h := newHarness(t, Options{}, failing)
	u1, u2 := joinPair(t, h)

	for _, text := range []string{"one", "two", "three"} {
		sendText(t, u1, text)
		assert.Equal(t, domain.MessageEvent("U1", text), readEvent(t, u1))
		assert.Equal(t, domain.MessageEvent("U1", text), readEvent(t, u2))
	}
	sendText(t, u2, "still fine")
	assert.Equal(t, domain.MessageEvent("U2", "still fine"), readEvent(t, u1))

	assert.Eventually(t, func() bool { return failing.calls.Load() == 4 }, 2*time.Second, 10*time.Millisecond)
}

func TestChat_RoomsAreIsolated(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	u1 := h.dial(t, "room=a&token=t1")
	assert.Equal(t, domain.JoinEvent("U1"), readEvent(t, u1))
	u3 := h.dial(t, "room=b&token=t3")
	assert.Equal(t, domain.JoinEvent("U3"), readEvent(t, u3))

	sendText(t, u3, "in b")
	assert.Equal(t, domain.MessageEvent("U3", "in b"), readEvent(t, u3))

	sendText(t, u1, "in a")
	assert.Equal(t, domain.MessageEvent("U1", "in a"), readEvent(t, u1), "nothing from room b reached room a")
}

func TestChat_DefaultRoomAndBearerHeader(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer t1")
	ws, resp, err := websocket.DefaultDialer.Dial(h.url(""), hdr)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer ws.Close()

	assert.Equal(t, domain.JoinEvent("U1"), readEvent(t, ws))
	assert.Equal(t, 1, memberCount(h, domain.DefaultRoom))
}

func TestChat_MalformedFrameClosesConnection(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	u1, u2 := joinPair(t, h)

	require.NoError(t, u1.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, websocket.CloseInvalidFramePayloadData, expectClose(t, u1))
	assert.Equal(t, domain.LeaveEvent("U1"), readEvent(t, u2))

	u3 := h.dial(t, "room=lobby&token=t3")
	readEvent(t, u2)
	for i := 0; i < 2; i++ {
		readEvent(t, u3)
	}
	require.NoError(t, u3.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	assert.Equal(t, websocket.CloseUnsupportedData, expectClose(t, u3))
}

func TestChat_RateLimited(t *testing.T) {
	h := newHarness(t, Options{RatePerSec: 0.01, RateBurst: 1}, nil)
	u1 := h.dial(t, "room=lobby&token=t1")
	readEvent(t, u1)

	sendText(t, u1, "first")
	assert.Equal(t, domain.MessageEvent("U1", "first"), readEvent(t, u1))
	sendText(t, u1, "second")
	assert.Equal(t, domain.ErrorEvent(domain.ReasonRateLimited), readEvent(t, u1))
}

func TestChat_IdleTimeout(t *testing.T) {
	h := newHarness(t, Options{IdleTimeout: 100 * time.Millisecond}, nil)
	u1 := h.dial(t, "room=lobby&token=t1")

	assert.Equal(t, websocket.CloseNormalClosure, expectClose(t, u1))
	assert.Eventually(t, func() bool { return len(h.orch.Rooms.List()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestChat_CancelAllClosesSessions(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	u1, u2 := joinPair(t, h)
	require.Eventually(t, func() bool { return h.orch.Registry.Count() == 2 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, h.orch.Registry.CancelAll())
	assert.Equal(t, websocket.CloseGoingAway, expectClose(t, u1))
	assert.Equal(t, websocket.CloseGoingAway, expectClose(t, u2))
	assert.Eventually(t, func() bool { return h.orch.Registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.orch.Rooms.List())
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	assert.True(t, open(req("https://evil.example")))

	strict := originChecker([]string{"https://chat.example/"})
	assert.True(t, strict(req("https://chat.example")))
	assert.True(t, strict(req("")))
	assert.False(t, strict(req("https://evil.example")))

	assert.True(t, originChecker([]string{"*"})(req("https://any.example")))
}

func TestMessageLimiter(t *testing.T) {
	var unlimited *MessageLimiter
	assert.True(t, unlimited.Allow())
	assert.Nil(t, NewMessageLimiter(0, 5))

	l := NewMessageLimiter(0.001, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}
