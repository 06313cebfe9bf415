package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kairoshq/kairos-gateway/internal/config"
	"github.com/kairoshq/kairos-gateway/internal/httpapi"
	"github.com/kairoshq/kairos-gateway/internal/observability"
	"github.com/kairoshq/kairos-gateway/internal/provision"
	"github.com/kairoshq/kairos-gateway/internal/rooms"
)

func main() {
	// Local development keeps credentials in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid APP_LOG_LEVEL")
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := config.LiveKitFromEnv().Validate(); err != nil {
		// Not fatal: credentials are re-read per request, so the gateway
		// recovers as soon as the environment is fixed. It just cannot
		// serve tokens until then.
		log.Warn().Err(err).Msg("livekit credentials incomplete at startup")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	registry := rooms.NewRegistry(provision.RoomEmptyTimeoutSeconds * time.Second)
	registry.SetEvictHook(func(room *rooms.Room) {
		log.Debug().Str("room", room.Name).Msg("room entry evicted")
		metrics.LiveRooms.Set(float64(registry.LiveCount()))
	})
	provisioner := provision.NewClient(cfg.ProvisionTimeout)

	srv := httpapi.New(cfg, config.LiveKitFromEnv, provisioner, registry, metrics, log.Logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: srv.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartJanitor(runCtx, cfg.RegistrySweepInterval)

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
}
