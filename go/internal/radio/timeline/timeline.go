package timeline

import (
	"errors"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrUndefined is returned when a Spec cannot produce a position
var ErrUndefined = errors.New("timeline position undefined: loop duration must be positive")

// Spec describes the canonical, infinitely looping timeline
type Spec struct {
	DurationSec   float64 `json:"durationSec" yaml:"duration_sec"`
	AnchorEpochMs int64   `json:"startAtEpochMs" yaml:"anchor_epoch_ms"`
}

// Validate reports whether the spec defines a position function
func (s Spec) Validate() error {
	if !(s.DurationSec > 0) || math.IsInf(s.DurationSec, 0) {
		return ErrUndefined
	}
	return nil
}

// Position returns the loop position in seconds at authority time tMs.
// The result is in [0, DurationSec). ok is false when the spec is degenerate,
// in which case callers must not act on the returned zero.
func (s Spec) Position(tMs float64) (pos float64, ok bool) {
	if s.Validate() != nil || math.IsNaN(tMs) {
		return 0, false
	}

	elapsed := (tMs - float64(s.AnchorEpochMs)) / 1000
	pos = math.Mod(elapsed, s.DurationSec)
	if pos < 0 {
		pos += s.DurationSec
	}
	// -tiny + duration rounds up to duration
	if pos >= s.DurationSec {
		pos = 0
	}
	return pos, true
}

// Authority answers "what is playing right now" for a fixed Spec
type Authority struct {
	spec      Spec
	clock     clockwork.Clock
	startedAt time.Time
}

// NewAuthority creates an authority over spec. The spec is copied and never changes.
func NewAuthority(spec Spec, clock clockwork.Clock) *Authority {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authority{
		spec:      spec,
		clock:     clock,
		startedAt: clock.Now(),
	}
}

// Spec returns the authority's timeline description
func (a *Authority) Spec() Spec {
	return a.spec
}

// NowMs returns the authority clock in Unix milliseconds
func (a *Authority) NowMs() int64 {
	return a.clock.Now().UnixMilli()
}

// PositionNow returns the canonical position at the current authority time
func (a *Authority) PositionNow() (float64, bool) {
	return a.spec.Position(float64(a.NowMs()))
}

// Uptime returns how long the authority has been running
func (a *Authority) Uptime() time.Duration {
	return a.clock.Since(a.startedAt)
}
