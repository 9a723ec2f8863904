// Package listener is the headless client side of the radio: it keeps a
// session with the timing authority, estimates the clock offset over
// ping/pong and steers a playback device onto the shared loop.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loopradio/go/internal/radio/clocksync"
	"github.com/mcdev12/loopradio/go/internal/radio/config"
	"github.com/mcdev12/loopradio/go/internal/radio/playback"
	"github.com/mcdev12/loopradio/go/internal/radio/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrDisconnected is returned by Run when the authority goes away
var ErrDisconnected = errors.New("disconnected from timing authority")

const writeTimeout = 10 * time.Second

// Listener is one session with the timing authority
type Listener struct {
	cfg        config.ListenerConfig
	conn       *websocket.Conn
	clock      clockwork.Clock
	estimator  *clocksync.Estimator
	controller *playback.Controller

	writeMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

// Dial connects to the authority at cfg.URL and prepares a session for device
func Dial(ctx context.Context, cfg config.ListenerConfig, device playback.Device, clock clockwork.Clock) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid listener configuration: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.URL, err)
	}

	log.Info().Str("url", cfg.URL).Msg("connected to timing authority")
	return newListener(conn, cfg, device, clock), nil
}

func newListener(conn *websocket.Conn, cfg config.ListenerConfig, device playback.Device, clock clockwork.Clock) *Listener {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	estimator := clocksync.NewEstimator(clock,
		clocksync.WithFilter(newFilter(cfg)),
		clocksync.WithPingTimeout(cfg.PingTimeout),
	)

	return &Listener{
		cfg:        cfg,
		conn:       conn,
		clock:      clock,
		estimator:  estimator,
		controller: playback.NewController(device, estimator, clock, playback.WithFrameRate(cfg.FrameRate)),
		ready:      make(chan struct{}),
	}
}

func newFilter(cfg config.ListenerConfig) clocksync.SampleFilter {
	if cfg.Filter == config.FilterMinRTT {
		return clocksync.NewMinRTTFilter(cfg.FilterWindow)
	}
	return clocksync.LatestSample{}
}

// Run drives the session until ctx is done or the connection drops. Every
// timer the session started is stopped before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		l.Close()
		return nil
	})
	g.Go(func() error {
		return l.readLoop(gctx)
	})
	g.Go(func() error {
		return l.pingLoop(gctx)
	})
	g.Go(func() error {
		return l.controller.Run(gctx)
	})

	err := g.Wait()
	log.Info().
		Uint64("ticks", l.controller.Ticks()).
		Interface("clock_stats", l.estimator.Stats()).
		Msg("listener session ended")
	return err
}

// Ready is closed once the authority's hello has been applied
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Estimator returns the session's clock offset estimator
func (l *Listener) Estimator() *clocksync.Estimator {
	return l.estimator
}

// Controller returns the session's playback controller
func (l *Listener) Controller() *playback.Controller {
	return l.controller
}

// Close ends the session. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

func (l *Listener) readLoop(ctx context.Context) error {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		l.handleMessage(data)
	}
}

func (l *Listener) handleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring server message")
		return
	}

	switch m := msg.(type) {
	case *protocol.Hello:
		est := l.estimator.OnHello(*m)
		l.controller.Attach(m.State.Spec())
		if l.cfg.Unmute {
			if err := l.controller.Unmute(); err != nil {
				log.Warn().Err(err).Msg("unmute failed")
			}
		}
		l.readyOnce.Do(func() { close(l.ready) })
		log.Info().
			Float64("offset_ms", est.OffsetMs).
			Str("status", l.controller.Status()).
			Msg("hello received")

	case *protocol.Pong:
		est, ok := l.estimator.OnPong(*m)
		if !ok {
			log.Debug().Float64("echo", m.Echo).Msg("ignoring pong with no outstanding ping")
			return
		}
		log.Debug().
			Float64("offset_ms", est.OffsetMs).
			Float64("rtt_ms", est.RTTMs).
			Msg("clock offset refined")

	default:
		log.Trace().Msg("ignoring unexpected server message")
	}
}

func (l *Listener) pingLoop(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			l.estimator.Sweep()
			if err := l.send(l.estimator.BeginPing()); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %v", ErrDisconnected, err)
			}
		}
	}
}

func (l *Listener) send(v any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return l.conn.WriteJSON(v)
}
