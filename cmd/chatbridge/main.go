package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbridge/chatbridge/internal/bridge"
	"github.com/chatbridge/chatbridge/internal/cache"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/events"
	"github.com/chatbridge/chatbridge/internal/ops"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cache backend: Redis when configured, else in-process memory.
	var store cache.Store
	checks := []ops.HealthCheck{}
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("using Redis cache backend")
		store = redisStore
		checks = append(checks, ops.HealthCheck{Name: "redis", Probe: redisStore.Ping})
	} else {
		store = cache.NewMemoryStore()
	}

	engine := bridge.New(logger, cfg, store, nil)
	checks = append(checks, ops.HealthCheck{
		Name: "stream",
		Probe: func(context.Context) error {
			return engine.StreamHealthy()
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      ops.NewRouter(logger, checks...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().
			Str("port", cfg.OpsPort).
			Str("env", cfg.Env).
			Msg("starting ops listener")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ops listener failed")
		}
	}()

	logger.Info().Str("endpoint", cfg.Endpoint).Msg("connecting to backend")
	if err := engine.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("engine start failed")
	}

	// Drain the event stream until shutdown. A real consumer would act on
	// these; the bundled binary reports them.
	go func() {
		for ev := range engine.Events() {
			switch v := ev.(type) {
			case events.ScanEvent:
				logger.Info().Str("qrcode", v.QRCode).Int("status", v.Status).Msg("scan update")
			case events.LoginEvent:
				logger.Info().Str("account", v.Account).Str("name", v.Name).Msg("logged in")
			case events.LogoutEvent:
				logger.Warn().Str("account", v.Account).Str("reason", v.Reason).Msg("logged out")
			case events.InvalidTokenEvent:
				logger.Error().Msg("token rejected, shutting down")
				stop()
			case events.MessageEvent:
				logger.Debug().
					Str("id", v.Message.ID).
					Str("peer", v.Message.PeerAccount).
					Str("room", v.Message.RoomID).
					Msg("message")
			default:
				logger.Debug().Str("kind", ev.Kind()).Msg("event")
			}
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("ops listener forced to shutdown")
	}

	logger.Info().Msg("stopped")
}
