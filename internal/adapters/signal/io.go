package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// session drives one authenticated websocket. The read pump and the write
// pump run on their own goroutines so a blocked reader never holds up
// outbound frames.
type session struct {
	ctl     *SignalWSController
	ms      core.MemberSession
	conn    *WsSignalConn
	limiter *MessageLimiter
	logger  zerolog.Logger

	lastSeen atomic.Int64
}

func newSession(ctl *SignalWSController, ms core.MemberSession, conn *WsSignalConn) *session {
	s := &session{
		ctl:     ctl,
		ms:      ms,
		conn:    conn,
		limiter: NewMessageLimiter(ctl.opts.RatePerSec, ctl.opts.RateBurst),
		logger: log.With().
			Str("module", "signal").
			Str("sid", string(ms.ID())).
			Str("room", string(ms.Meta().Room)).
			Logger(),
	}
	s.touch()
	return s
}

func (s *session) setState(st core.SessionState) {
	s.logger.Debug().Str("state", st.String()).Msg("session state")
}

func (s *session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastSeen.Load()))
}

// run blocks until the connection is closed from either side or ctx ends.
// The write pump is up before the join so the presence replay can go out
// ahead of the queue; reading starts once the member is in its room.
func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.ctl.Orch.Attach(s.ms, cancel)

	replay := make(chan []core.Frame, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writePump(gctx, replay) })
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil && !s.conn.isClosed() {
			s.conn.closeWith(websocket.CloseGoingAway, "server shutdown", s.ctl.opts.WriteWait)
		}
		s.conn.Close()
		return nil
	})

	replay <- encodeAll(s.ctl.Orch.Join(s.ms))
	s.setState(core.StateActive)
	g.Go(func() error { return s.readPump(gctx) })
	err := g.Wait()

	s.setState(core.StateClosed)
	s.ctl.Orch.OnDisconnect(s.ms)
	s.logger.Info().AnErr("cause", err).Msg("session closed")
}

func encodeAll(events []domain.Event) []core.Frame {
	frames := make([]core.Frame, 0, len(events))
	for _, ev := range events {
		data, err := ev.Encode()
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("encode presence")
			continue
		}
		frames = append(frames, core.Frame(data))
	}
	return frames
}

func (s *session) write(data core.Frame) error {
	if err := s.conn.ws.SetWriteDeadline(time.Now().Add(s.ctl.opts.WriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// writePump first writes the presence replay, then drains the outbound queue.
func (s *session) writePump(ctx context.Context, replay <-chan []core.Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case frames := <-replay:
		for _, f := range frames {
			if err := s.write(f); err != nil {
				return err
			}
		}
	}

	opts := s.ctl.opts
	ping := time.NewTicker(opts.PingPeriod)
	defer ping.Stop()

	var idle <-chan time.Time
	if opts.IdleTimeout > 0 {
		t := time.NewTicker(idleCheckInterval(opts.IdleTimeout))
		defer t.Stop()
		idle = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-s.conn.send:
			if !ok {
				return errOutboxClosed
			}
			if err := s.write(data); err != nil {
				return err
			}
		case <-ping.C:
			if err := s.conn.ping(opts.WriteWait); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-idle:
			if s.idleFor() >= opts.IdleTimeout {
				s.logger.Info().Dur("idle", s.idleFor()).Msg("closing idle connection")
				s.conn.closeWith(websocket.CloseNormalClosure, "idle timeout", opts.WriteWait)
				return errIdle
			}
		}
	}
}

func idleCheckInterval(idle time.Duration) time.Duration {
	d := idle / 4
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	if d > time.Second {
		d = time.Second
	}
	return d
}

func (s *session) readPump(ctx context.Context) error {
	opts := s.ctl.opts
	ws := s.conn.ws
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Warn().Err(err).Msg("readPump read error")
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
		s.touch()

		if err := s.handleFrame(mt, data); err != nil {
			return err
		}
	}
}

// handleFrame applies one inbound frame. Anything that is not a JSON text
// frame closes the connection.
func (s *session) handleFrame(mt int, data []byte) error {
	wait := s.ctl.opts.WriteWait
	if mt != websocket.TextMessage {
		s.logger.Warn().Int("frame_type", mt).Msg("non-text frame")
		s.conn.closeWith(websocket.CloseUnsupportedData, "text frames only", wait)
		return errMalformed
	}
	var in domain.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		s.logger.Warn().Err(err).Msg("bad json")
		s.conn.closeWith(websocket.CloseInvalidFramePayloadData, "malformed frame", wait)
		return errors.Join(errMalformed, err)
	}
	if !s.limiter.Allow() {
		s.ctl.Orch.Reject(s.ms, domain.ReasonRateLimited)
		return nil
	}
	s.ctl.Orch.OnText(s.ms, in.Text)
	return nil
}
