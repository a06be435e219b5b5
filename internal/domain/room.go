package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultRoom    RoomName = "lobby"
	MaxRoomNameLen          = 100
)

type RoomName string

// ParseRoomName trims the raw query value and falls back to the lobby.
// Invalid UTF-8 is dropped and long names are cut to MaxRoomNameLen runes.
func ParseRoomName(raw string) RoomName {
	raw = strings.TrimSpace(strings.ToValidUTF8(raw, ""))
	if raw == "" {
		return DefaultRoom
	}
	if utf8.RuneCountInString(raw) > MaxRoomNameLen {
		raw = string([]rune(raw)[:MaxRoomNameLen])
	}
	return RoomName(raw)
}
