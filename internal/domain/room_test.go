package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestParseRoomName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want RoomName
	}{
		{"empty", "", DefaultRoom},
		{"blank", "   ", DefaultRoom},
		{"trimmed", "  annex ", "annex"},
		{"invalid utf8 dropped", "ro\xffom", "room"},
		{"only invalid utf8", "\xff\xfe", DefaultRoom},
		{"long ascii cut", strings.Repeat("a", MaxRoomNameLen+5), RoomName(strings.Repeat("a", MaxRoomNameLen))},
		{"long multibyte cut on rune boundary", strings.Repeat("é", MaxRoomNameLen+1), RoomName(strings.Repeat("é", MaxRoomNameLen))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRoomName(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(string(got)))
		})
	}
}
