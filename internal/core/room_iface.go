package core

import (
	"github.com/dkeye/Relay/internal/domain"
)

// PublishResult reports delivery stats to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SubjectID   domain.SubjectID `json:"subject_id"`
	DisplayName string           `json:"display_name"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Name() domain.RoomName
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember returns the members that were present before ms.
	AddMember(ms MemberSession) []MemberSession
	// RemoveMember reports whether sid was present and whether the room is now empty.
	RemoveMember(sid SessionID) (removed, empty bool)
	Broadcast(data Frame) PublishResult
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// RoomManager is the room registry: the only place membership changes.
type RoomManager interface {
	Join(name domain.RoomName, ms MemberSession) []MemberSession
	Leave(name domain.RoomName, sid SessionID)
	Broadcast(name domain.RoomName, ev domain.Event) PublishResult
	List() []RoomInfo
	Members(name domain.RoomName) ([]MemberDTO, bool)
}
