package signal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Options tune one websocket session.
type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	IdleTimeout    time.Duration
	SendBuffer     int
	AllowedOrigins []string
	RatePerSec     float64
	RateBurst      int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		IdleTimeout:    cfg.IdleTimeout,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
		RatePerSec:     cfg.RateLimit.PerSec,
		RateBurst:      cfg.RateLimit.Burst,
	}
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Orch     *app.Orchestrator
	Verifier auth.Verifier

	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(orch *app.Orchestrator, verifier auth.Verifier, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:     orch,
		Verifier: verifier,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when the list is empty. Requests without
// an Origin header come from non-browser clients and are always allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}

// credentialFrom looks at the token and credential query parameters, then at
// an Authorization bearer header. Browsers cannot set headers on websocket
// upgrades, hence the query first.
func credentialFrom(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if t := c.Query("credential"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// HandleChat upgrades the request and runs the chat session on the calling
// goroutine until the connection is gone.
func (ctl *SignalWSController) HandleChat(ctx context.Context, c *gin.Context) {
	room := domain.ParseRoomName(c.Query("room"))
	sid := core.SessionID(uuid.NewString())
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room)).Logger()
	logger.Debug().Str("state", core.StateConnecting.String()).Msg("new WS connection")

	ident, verr := ctl.Verifier.Verify(credentialFrom(c))

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)

	if verr != nil {
		logger.Warn().Err(verr).Msg("rejecting connection")
		conn.closeWith(CloseUnauthorized, "unauthorized", ctl.opts.WriteWait)
		return
	}

	meta := domain.NewMember(ident, room)
	sess := newSession(ctl, core.NewMemberSession(sid, meta, conn), conn)
	sess.setState(core.StateAuthenticated)
	sess.run(ctx)
}

// WsSignalConn is the outbound queue of one websocket. Frames are queued by
// TrySend and written by the session's write pump.
type WsSignalConn struct {
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		ws:   ws,
		send: make(chan core.Frame, buffer),
	}
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
