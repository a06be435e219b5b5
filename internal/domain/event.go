package domain

import "encoding/json"

type EventType string

const (
	EventJoin    EventType = "join"
	EventLeave   EventType = "leave"
	EventMessage EventType = "message"
	EventError   EventType = "error"
)

const (
	ReasonBlocked     = "blocked"
	ReasonRateLimited = "rate_limited"
)

// Event is the outbound frame sent to clients. Only the fields relevant to
// Type are set; the others are omitted on the wire.
type Event struct {
	Type   EventType `json:"type"`
	User   string    `json:"user,omitempty"`
	Text   string    `json:"text,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

func JoinEvent(user string) Event  { return Event{Type: EventJoin, User: user} }
func LeaveEvent(user string) Event { return Event{Type: EventLeave, User: user} }

func MessageEvent(user, text string) Event {
	return Event{Type: EventMessage, User: user, Text: text}
}

func ErrorEvent(reason string) Event { return Event{Type: EventError, Reason: reason} }

func (e Event) Encode() ([]byte, error) { return json.Marshal(e) }

// Inbound is the only frame shape clients send. A missing text decodes as "".
type Inbound struct {
	Text string `json:"text"`
}
