package app

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Moderator is the content predicate applied to every inbound text.
type Moderator interface {
	Allowed(text string) bool
}

// Archive takes delivered messages on a fire-and-forget path.
type Archive interface {
	Submit(subject domain.SubjectID, room domain.RoomName, text string)
}

// Orchestrator holds the per-session chat rules; adapters call it from the
// session goroutines.
type Orchestrator struct {
	Registry *Registry
	Rooms    core.RoomManager
	Filter   Moderator
	Archive  Archive
}

// Attach registers a live session so it can be cancelled from outside.
func (o *Orchestrator) Attach(ms core.MemberSession, cancel context.CancelFunc) {
	o.Registry.BindSession(ms, cancel)
}

// Join admits ms into its room and announces it to the whole room, ms
// included. It returns one join event per member that was already present;
// the caller delivers them to ms ahead of anything queued for it, so the
// replay never competes with the outbound queue.
func (o *Orchestrator) Join(ms core.MemberSession) []domain.Event {
	meta := ms.Meta()
	peers := o.Rooms.Join(meta.Room, ms)
	presence := make([]domain.Event, 0, len(peers))
	for _, p := range peers {
		presence = append(presence, domain.JoinEvent(p.Meta().Identity.DisplayName))
	}
	o.broadcast(meta.Room, domain.JoinEvent(meta.Identity.DisplayName))
	log.Info().
		Str("module", "app.orchestrator").
		Str("sid", string(ms.ID())).
		Str("room", string(meta.Room)).
		Str("user", meta.Identity.DisplayName).
		Int("peers", len(peers)).
		Msg("joined")
	return presence
}

// OnText handles one decoded inbound text. Rejected texts are reported to
// the sender only and are neither broadcast nor archived.
func (o *Orchestrator) OnText(ms core.MemberSession, text string) {
	meta := ms.Meta()
	if !o.Filter.Allowed(text) {
		log.Debug().Str("module", "app.orchestrator").Str("sid", string(ms.ID())).Msg("text blocked")
		o.Reject(ms, domain.ReasonBlocked)
		return
	}
	o.broadcast(meta.Room, domain.MessageEvent(meta.Identity.DisplayName, text))
	if o.Archive != nil {
		o.Archive.Submit(meta.Identity.SubjectID, meta.Room, text)
	}
}

// Reject sends an error event to ms alone.
func (o *Orchestrator) Reject(ms core.MemberSession, reason string) {
	o.sendTo(ms, domain.ErrorEvent(reason))
}

// OnDisconnect removes ms from its room and tells the rest of the room.
// Safe to call for a session that a broadcast already dropped.
func (o *Orchestrator) OnDisconnect(ms core.MemberSession) {
	meta := ms.Meta()
	o.Rooms.Leave(meta.Room, ms.ID())
	o.broadcast(meta.Room, domain.LeaveEvent(meta.Identity.DisplayName))
	o.Registry.Unbind(ms.ID())
	log.Info().
		Str("module", "app.orchestrator").
		Str("sid", string(ms.ID())).
		Str("room", string(meta.Room)).
		Msg("left")
}

func (o *Orchestrator) broadcast(room domain.RoomName, ev domain.Event) {
	res := o.Rooms.Broadcast(room, ev)
	for _, dropped := range res.Dropped {
		o.kick(dropped, "delivery failed")
	}
}

func (o *Orchestrator) sendTo(ms core.MemberSession, ev domain.Event) {
	data, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.orchestrator").Msg("encode event")
		return
	}
	if err := ms.Signal().TrySend(core.Frame(data)); err != nil {
		o.Rooms.Leave(ms.Meta().Room, ms.ID())
		o.kick(ms, err.Error())
	}
}

// kick releases the outbound queue of a member that can no longer keep up
// and cancels its session, which then runs the normal disconnect path.
func (o *Orchestrator) kick(ms core.MemberSession, reason string) {
	log.Warn().
		Str("module", "app.orchestrator").
		Str("sid", string(ms.ID())).
		Str("room", string(ms.Meta().Room)).
		Str("reason", reason).
		Msg("kicking member")
	ms.Signal().Close()
	o.Registry.Cancel(ms.ID())
}
