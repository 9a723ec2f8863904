package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrStalled is returned by SimulatedDevice.Start while the device is buffering
var ErrStalled = errors.New("playback device stalled")

// Device is the real playback cursor. The controller never assumes exclusive
// control: other actors may mute, pause or stall it at any time.
type Device interface {
	// Position returns the current cursor in seconds (0 when unknown)
	Position() float64
	Running() bool
	SetPosition(sec float64)
	SetRate(multiplier float64)
	Start() error
}

// Muter is implemented by devices that can be silenced
type Muter interface {
	SetMuted(muted bool)
	Muted() bool
}

// SimulatedDevice is a software playback cursor advancing with a clock.
// It stops at the end of the track like a non-looping media element.
type SimulatedDevice struct {
	clock       clockwork.Clock
	durationSec float64

	mu      sync.Mutex
	base    float64
	baseAt  time.Time
	rate    float64
	running bool
	muted   bool
	stalled bool
	seeks   int
}

// NewSimulatedDevice creates a stopped device at position 0.
// durationSec <= 0 means the track never ends.
func NewSimulatedDevice(clock clockwork.Clock, durationSec float64) *SimulatedDevice {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SimulatedDevice{
		clock:       clock,
		durationSec: durationSec,
		baseAt:      clock.Now(),
		rate:        NormalRate,
	}
}

// positionLocked folds elapsed playback into base and handles end of track
func (d *SimulatedDevice) positionLocked() float64 {
	now := d.clock.Now()
	if d.running {
		d.base += now.Sub(d.baseAt).Seconds() * d.rate
		if d.durationSec > 0 && d.base >= d.durationSec {
			d.base = d.durationSec
			d.running = false
		}
	}
	d.baseAt = now
	return d.base
}

func (d *SimulatedDevice) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

func (d *SimulatedDevice) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionLocked()
	return d.running
}

func (d *SimulatedDevice) SetPosition(sec float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionLocked()
	if sec < 0 {
		sec = 0
	}
	d.base = sec
	d.seeks++
}

func (d *SimulatedDevice) SetRate(multiplier float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionLocked()
	d.rate = multiplier
}

func (d *SimulatedDevice) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

func (d *SimulatedDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionLocked()
	if d.stalled {
		return ErrStalled
	}
	if d.durationSec > 0 && d.base >= d.durationSec {
		// ended; only a seek makes it playable again
		return nil
	}
	d.running = true
	return nil
}

// Pause stops the cursor where it is, as a user would
func (d *SimulatedDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionLocked()
	d.running = false
}

// Stall models buffering: the cursor stops and Start fails until Recover
func (d *SimulatedDevice) Stall() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionLocked()
	d.running = false
	d.stalled = true
}

// Recover ends a stall
func (d *SimulatedDevice) Recover() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stalled = false
}

func (d *SimulatedDevice) SetMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = muted
}

func (d *SimulatedDevice) Muted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

// Seeks returns how many times the cursor was moved
func (d *SimulatedDevice) Seeks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seeks
}
