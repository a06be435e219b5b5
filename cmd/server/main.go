package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Relay/internal/adapters/http"
	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/archive"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/moderation"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	verifier, err := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token verifier")
	}

	var (
		store    *archive.Store
		history  router.HistorySource
		archiver archive.Archiver = archive.Nop{}
	)
	if cfg.Archive.Enabled {
		store, err = archive.OpenSQLite(cfg.Archive.DSN)
		if err != nil {
			log.Fatal().Err(err).Str("dsn", cfg.Archive.DSN).Msg("failed to open archive")
		}
		archiver, history = store, store
	}
	async := archive.NewAsync(archiver, cfg.Archive.Timeout)

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Filter:   moderation.New(cfg.Moderation.Blocklist, cfg.Moderation.MaxLength),
		Archive:  async,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := signal.NewSignalWSController(orch, verifier, signal.OptionsFromConfig(cfg))
	r := router.SetupRouter(ctx, cfg, ctrl, history)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				log.Info().Msg("Shutting down http server")
				return srv.Shutdown(ctx)
			},
			"sessions": func(ctx context.Context) error {
				n := orch.Registry.CancelAll()
				cancel()
				log.Info().Int("sessions", n).Msg("closed live sessions")
				return nil
			},
			"archive": func(ctx context.Context) error {
				stopErr := async.Stop(ctx)
				if store != nil {
					return errors.Join(stopErr, store.Close())
				}
				return stopErr
			},
		},
	)

	exitCode := <-wait
	log.Info().Int("code", exitCode).Msg("Server exited")
	os.Exit(exitCode)
}
