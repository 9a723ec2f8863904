// Package clocksync estimates the additive offset between a client's clock and
// the timing authority's clock.
//
// The first estimate comes from the unsolicited hello (one-way, ignores latency).
// Every ping/pong round trip then produces a sample assuming symmetric latency:
//
//	offset = serverNow - (echo + receivedAt) / 2
//
// Samples pass through a SampleFilter. The default keeps the latest sample
// unconditionally; MinRTTFilter keeps the lowest round-trip sample in a window.
package clocksync

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loopradio/go/internal/radio/protocol"
	"github.com/rs/zerolog/log"
)

// DefaultPingTimeout is how long a ping may go unanswered before it is abandoned
const DefaultPingTimeout = 5 * time.Second

// Source records where an estimate came from
type Source int

const (
	SourceNone Source = iota
	SourceHello
	SourceRoundTrip
)

func (s Source) String() string {
	switch s {
	case SourceHello:
		return "hello"
	case SourceRoundTrip:
		return "round_trip"
	default:
		return "none"
	}
}

// Estimate is an immutable offset sample. Readers always see a whole value.
type Estimate struct {
	// OffsetMs is authority time minus local time
	OffsetMs float64
	// RTTMs is the measured round trip; negative when unknown (hello)
	RTTMs  float64
	Source Source
	At     time.Time
}

// Stats summarizes estimator activity
type Stats struct {
	PingsSent       uint64
	PingsTimedOut   uint64
	SamplesAccepted uint64
	PongsIgnored    uint64
	LastRTTMs       float64
}

// Estimator tracks the clock offset for one session
type Estimator struct {
	clock       clockwork.Clock
	origin      time.Time
	originMs    float64
	pingTimeout time.Duration

	current atomic.Pointer[Estimate]

	// guards pending, filter and stats; the read loop and ping timer both enter here
	mu      sync.Mutex
	filter  SampleFilter
	pending map[float64]time.Time
	stats   Stats
}

// Option configures an Estimator
type Option func(*Estimator)

// WithFilter replaces the default latest-sample policy
func WithFilter(f SampleFilter) Option {
	return func(e *Estimator) {
		if f != nil {
			e.filter = f
		}
	}
}

// WithPingTimeout sets how long an unanswered ping stays outstanding
func WithPingTimeout(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.pingTimeout = d
		}
	}
}

// NewEstimator creates an estimator whose local monotonic origin is now
func NewEstimator(clock clockwork.Clock, opts ...Option) *Estimator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	origin := clock.Now()
	e := &Estimator{
		clock:       clock,
		origin:      origin,
		originMs:    unixMs(origin),
		pingTimeout: DefaultPingTimeout,
		filter:      LatestSample{},
		pending:     make(map[float64]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LocalNowMs returns the local wall clock in Unix milliseconds
func (e *Estimator) LocalNowMs() float64 {
	return unixMs(e.clock.Now())
}

// MonotonicMs returns milliseconds since the estimator was created
func (e *Estimator) MonotonicMs() float64 {
	return e.sinceOrigin(e.clock.Now())
}

func (e *Estimator) sinceOrigin(t time.Time) float64 {
	return float64(t.Sub(e.origin)) / float64(time.Millisecond)
}

// OnHello sets the coarse one-way estimate from the authority's connect message
func (e *Estimator) OnHello(hello protocol.Hello) Estimate {
	est := Estimate{
		OffsetMs: float64(hello.ServerNow) - e.LocalNowMs(),
		RTTMs:    -1,
		Source:   SourceHello,
		At:       e.clock.Now(),
	}

	e.mu.Lock()
	e.filter.Reset()
	e.mu.Unlock()

	e.current.Store(&est)
	log.Debug().
		Float64("offset_ms", est.OffsetMs).
		Msg("initial clock offset from hello")
	return est
}

// BeginPing abandons expired pings and returns a new ping stamped with local monotonic time
func (e *Estimator) BeginPing() protocol.Ping {
	now := e.clock.Now()
	echo := e.sinceOrigin(now)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireLocked(now)
	e.pending[echo] = now
	e.stats.PingsSent++
	return protocol.NewPing(echo)
}

// Sweep abandons pings that have waited longer than the ping timeout and
// returns how many were dropped. The offset is left untouched.
func (e *Estimator) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expireLocked(e.clock.Now())
}

func (e *Estimator) expireLocked(now time.Time) int {
	expired := 0
	for echo, sentAt := range e.pending {
		if now.Sub(sentAt) > e.pingTimeout {
			delete(e.pending, echo)
			expired++
		}
	}
	if expired > 0 {
		e.stats.PingsTimedOut += uint64(expired)
		log.Debug().Int("expired", expired).Msg("pings abandoned without pong, keeping prior offset")
	}
	return expired
}

// OnPong refines the offset from a round trip. Pongs that do not answer an
// outstanding ping are ignored and leave the offset unchanged.
func (e *Estimator) OnPong(pong protocol.Pong) (Estimate, bool) {
	now := e.clock.Now()
	receivedAt := e.sinceOrigin(now)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pending[pong.Echo]; !ok {
		e.stats.PongsIgnored++
		return Estimate{}, false
	}
	delete(e.pending, pong.Echo)

	mid := (pong.Echo + receivedAt) / 2
	sample := Estimate{
		OffsetMs: float64(pong.ServerNow) - (e.originMs + mid),
		RTTMs:    receivedAt - pong.Echo,
		Source:   SourceRoundTrip,
		At:       now,
	}

	chosen := e.filter.Add(sample)
	e.current.Store(&chosen)
	e.stats.SamplesAccepted++
	e.stats.LastRTTMs = sample.RTTMs
	return chosen, true
}

// Current returns the latest estimate; ok is false before the first hello
func (e *Estimator) Current() (Estimate, bool) {
	est := e.current.Load()
	if est == nil {
		return Estimate{}, false
	}
	return *est, true
}

// OffsetMs returns the current offset, zero before any estimate
func (e *Estimator) OffsetMs() float64 {
	est, _ := e.Current()
	return est.OffsetMs
}

// AuthorityNowMs maps the local clock onto the authority clock
func (e *Estimator) AuthorityNowMs() float64 {
	return e.LocalNowMs() + e.OffsetMs()
}

// Outstanding returns how many pings are awaiting a pong
func (e *Estimator) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stats returns a snapshot of estimator counters
func (e *Estimator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func unixMs(t time.Time) float64 {
	return float64(t.Unix())*1000 + float64(t.Nanosecond())/1e6
}
