package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 5 * time.Second

// Async runs every Record call in its own goroutine. Submit never blocks
// and never reports an outcome: failures and panics are logged and dropped.
type Async struct {
	archiver Archiver
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewAsync(a Archiver, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Async{archiver: a, timeout: timeout, ctx: ctx, cancel: cancel}
}

func (a *Async) Submit(subject domain.SubjectID, room domain.RoomName, text string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		log.Debug().Str("module", "archive").Str("room", string(room)).Msg("archiver stopped, message not recorded")
		return
	}
	a.wg.Add(1)
	go a.record(subject, room, text)
}

func (a *Async) record(subject domain.SubjectID, room domain.RoomName, text string) {
	defer a.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "archive").
				Str("room", string(room)).
				Str("panic", fmt.Sprint(r)).
				Msg("archiver panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()
	if err := a.archiver.Record(ctx, subject, room, text); err != nil {
		log.Warn().
			Err(err).
			Str("module", "archive").
			Int64("subject", int64(subject)).
			Str("room", string(room)).
			Msg("archive failed")
	}
}

// Stop refuses new submissions and waits for in-flight ones until ctx is
// done; whatever is still running then gets its context cancelled.
func (a *Async) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.cancel()
		log.Info().Str("module", "archive").Msg("all pending archives flushed")
		return nil
	case <-ctx.Done():
		a.cancel()
		log.Warn().Str("module", "archive").Msg("abandoning pending archives")
		return ctx.Err()
	}
}

// Nop discards every message.
type Nop struct{}

func (Nop) Record(context.Context, domain.SubjectID, domain.RoomName, string) error { return nil }
