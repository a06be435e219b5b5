package domain

// Member represents a connection's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	Identity Identity
	Room     RoomName
}

func NewMember(id Identity, room RoomName) *Member {
	return &Member{Identity: id, Room: room}
}
