package http

import (
	"context"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SetupRouter wires the chat websocket endpoint and the read-only HTTP API.
// history may be nil when archiving is disabled.
func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *signal.SignalWSController, history HistorySource) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{orch: ctrl.Orch, history: history}

	r.GET("/health", h.health)
	r.GET("/healthz", h.health)

	r.GET("/ws/chat", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("room", c.Query("room")).Msg("ws chat endpoint hit")
		ctrl.HandleChat(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:name/members", h.roomMembers)
	api.GET("/rooms/:name/history", h.roomHistory)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
