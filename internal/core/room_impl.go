package core

import (
	"sync"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
//
// Lock order: sendMu before mu. mu guards bySID; it is held only to mutate
// membership or to copy it, never while sending. sendMu serialises
// broadcasts so every member observes this room's events in issue order.
type roomImpl struct {
	name   domain.RoomName
	sendMu sync.Mutex
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
}

func NewRoomService(name domain.RoomName) RoomService {
	return &roomImpl{
		name:  name,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Name() domain.RoomName { return r.name }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(ms MemberSession) []MemberSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]MemberSession, 0, len(r.bySID))
	for sid, m := range r.bySID {
		if sid != ms.ID() {
			peers = append(peers, m)
		}
	}
	r.bySID[ms.ID()] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(ms.ID())).Int("members", len(r.bySID)).Msg("member added")
	return peers
}

func (r *roomImpl) RemoveMember(sid SessionID) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok {
		return false, len(r.bySID) == 0
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Int("members", len(r.bySID)).Msg("member removed")
	return true, len(r.bySID) == 0
}

func (r *roomImpl) snapshot() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.bySID))
	for _, m := range r.bySID {
		out = append(out, m)
	}
	return out
}

// Broadcast enqueues data on every member's outbound queue. Members whose
// queue is closed or full are reported in Dropped; removing them is the
// caller's job, done after this returns so the snapshot stays untouched.
func (r *roomImpl) Broadcast(data Frame) PublishResult {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	res := PublishResult{}
	for _, m := range r.snapshot() {
		if err := m.Signal().TrySend(data); err != nil {
			log.Debug().Err(err).Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(m.ID())).Msg("delivery failed")
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for _, ms := range r.bySID {
		id := ms.Meta().Identity
		out = append(out, MemberDTO{SubjectID: id.SubjectID, DisplayName: id.DisplayName})
	}
	return out
}
