package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loopradio/go/internal/radio/config"
	"github.com/mcdev12/loopradio/go/internal/radio/listener"
	"github.com/mcdev12/loopradio/go/internal/radio/playback"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const statusInterval = 5 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadListener()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load listener configuration")
	}
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	// the real loop length arrives with hello; the simulated track only needs to outlast it
	device := playback.NewSimulatedDevice(clock, 24*time.Hour.Seconds())

	l, err := listener.Dial(ctx, cfg, device, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}

	go reportStatus(ctx, l, clock)

	if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("listener stopped")
		os.Exit(1)
	}
	log.Info().Msg("listener shutdown complete")
}

func reportStatus(ctx context.Context, l *listener.Listener, clock clockwork.Clock) {
	ticker := clock.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			est, _ := l.Estimator().Current()
			stats := l.Estimator().Stats()
			want, ok := l.Controller().Target()

			event := log.Info().
				Str("status", l.Controller().Status()).
				Str("state", l.Controller().State().String()).
				Float64("offset_ms", est.OffsetMs).
				Str("offset_source", est.Source.String()).
				Float64("last_rtt_ms", stats.LastRTTMs).
				Uint64("pings_timed_out", stats.PingsTimedOut).
				Float64("authority_now_ms", l.Estimator().AuthorityNowMs())
			if ok {
				event = event.Float64("want_sec", want)
			}
			if act, ok := l.Controller().LastAction(); ok {
				event = event.Float64("err_sec", act.ErrSec).Float64("rate", act.Rate)
			}
			event.Msg("listener status")
		}
	}
}
