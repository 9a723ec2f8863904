package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loopradio/go/internal/radio/config"
	"github.com/mcdev12/loopradio/go/internal/radio/events"
	"github.com/mcdev12/loopradio/go/internal/radio/gateway"
	"github.com/mcdev12/loopradio/go/internal/radio/timeline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))

	clock := clockwork.NewRealClock()
	authority := timeline.NewAuthority(cfg.Timeline(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := &events.CountingMetrics{}
	publisher := events.NewMetricPublisher(newPublisher(ctx, cfg), metrics)
	service := gateway.NewService(cfg, authority, publisher, clock)

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      service.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	pos, _ := authority.PositionNow()
	log.Info().
		Str("addr", server.Addr).
		Str("ws_path", cfg.WSPath).
		Str("station", cfg.StationLabel).
		Float64("duration_sec", cfg.DurationSec).
		Int64("anchor_epoch_ms", cfg.AnchorEpochMs).
		Float64("position_sec", pos).
		Msg("starting radio timing authority")

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// hijacked WebSocket connections are not tracked by Shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-serviceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("gateway service did not stop in time")
	}

	published, failed, mean := metrics.Snapshot()
	log.Info().
		Uint64("events_published", published).
		Uint64("events_failed", failed).
		Dur("mean_publish_latency", mean).
		Msg("radio timing authority shutdown complete")
}

// newPublisher uses JetStream when NATS_URL is set and logs events otherwise
func newPublisher(ctx context.Context, cfg config.Config) events.Publisher {
	if cfg.NATSURL == "" {
		return events.LogPublisher{}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	publisher, err := events.NewJetStreamPublisher(connectCtx, events.DefaultJetStreamConfig(cfg.NATSURL))
	if err != nil {
		log.Warn().
			Err(err).
			Str("nats_url", cfg.NATSURL).
			Msg("session events unavailable, falling back to log publisher")
		return events.LogPublisher{}
	}
	return publisher
}
