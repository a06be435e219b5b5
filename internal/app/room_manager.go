package app

import (
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the process-local room registry.
//
// mu guards the rooms map. Join and Leave hold it exclusively so that a room
// is created together with its first member and deleted together with its
// last one: a room is in the map if and only if it has members. Broadcast
// only takes it shared for the lookup; membership snapshots and delivery use
// the room's own locks, so busy rooms do not serialise each other.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]core.RoomService
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{rooms: make(map[domain.RoomName]core.RoomService)}
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)

func (f *RoomManagerImpl) Join(name domain.RoomName, ms core.MemberSession) []core.MemberSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[name]
	if !ok {
		room = core.NewRoomService(name)
		f.rooms[name] = room
		log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room created")
	}
	return room.AddMember(ms)
}

func (f *RoomManagerImpl) Leave(name domain.RoomName, sid core.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[name]
	if !ok {
		return
	}
	if _, empty := room.RemoveMember(sid); empty {
		delete(f.rooms, name)
		log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room discarded")
	}
}

func (f *RoomManagerImpl) room(name domain.RoomName) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	return room, ok
}

// Broadcast never fails towards the caller. Members that could not take the
// event are removed from the room and returned in Dropped.
func (f *RoomManagerImpl) Broadcast(name domain.RoomName, ev domain.Event) core.PublishResult {
	room, ok := f.room(name)
	if !ok {
		return core.PublishResult{}
	}
	data, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("type", string(ev.Type)).Msg("encode event")
		return core.PublishResult{}
	}
	res := room.Broadcast(core.Frame(data))
	for _, m := range res.Dropped {
		f.Leave(name, m.ID())
	}
	return res
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for name, r := range f.rooms {
		out = append(out, core.RoomInfo{Name: name, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) Members(name domain.RoomName) ([]core.MemberDTO, bool) {
	room, ok := f.room(name)
	if !ok {
		return nil, false
	}
	return room.MembersSnapshot(), true
}
