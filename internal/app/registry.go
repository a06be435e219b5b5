package app

import (
	"context"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks live sessions so they can be cancelled from outside their
// own goroutines, e.g. on server shutdown.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) BindSession(sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = &sessionEntry{
		Session: sess,
		Cancel:  cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("room", string(sess.Meta().Room)).Msg("bound session")
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel ends one live session, reporting whether it was bound.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

// CancelAll cancels every live session and returns how many there were.
// Sessions unbind themselves once their goroutines have wound down.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	r.mu.RUnlock()
	for _, c := range cancels {
		c()
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(cancels)).Msg("canceled all sessions")
	return len(cancels)
}
