package playback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loopradio/go/internal/radio/timeline"
	"github.com/rs/zerolog/log"
)

// DefaultFrameRate is the controller cadence when none is configured
const DefaultFrameRate = 60

const (
	statusWaiting = "Waiting for timeline"
	statusMuted   = "Live (muted). Tap to unmute."
	statusLive    = "Live"
)

// OffsetSource supplies the current local-to-authority clock offset
type OffsetSource interface {
	OffsetMs() float64
}

// Controller steers a Device toward the canonical timeline position
type Controller struct {
	device        Device
	offsets       OffsetSource
	clock         clockwork.Clock
	frameInterval time.Duration

	spec  atomic.Pointer[timeline.Spec]
	state atomic.Int32
	last  atomic.Pointer[Action]
	ticks atomic.Uint64
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithFrameRate sets how many ticks per second Run performs
func WithFrameRate(fps int) ControllerOption {
	return func(c *Controller) {
		if fps > 0 {
			c.frameInterval = time.Second / time.Duration(fps)
		}
	}
}

// NewController creates a controller in CorrectingHard with no timeline
func NewController(device Device, offsets OffsetSource, clock clockwork.Clock, opts ...ControllerOption) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Controller{
		device:        device,
		offsets:       offsets,
		clock:         clock,
		frameInterval: time.Second / DefaultFrameRate,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(CorrectingHard))
	return c
}

// Attach installs the timeline received on connect and starts the device muted
func (c *Controller) Attach(spec timeline.Spec) {
	c.spec.Store(&spec)
	c.state.Store(int32(CorrectingHard))

	if err := spec.Validate(); err != nil {
		log.Warn().
			Err(err).
			Float64("duration_sec", spec.DurationSec).
			Msg("degenerate timeline, correction suspended")
		return
	}

	if m, ok := c.device.(Muter); ok {
		m.SetMuted(true)
	}
	if err := c.device.Start(); err != nil {
		log.Debug().Err(err).Msg("initial muted start failed, frame loop will retry")
	}

	log.Info().
		Float64("duration_sec", spec.DurationSec).
		Int64("anchor_epoch_ms", spec.AnchorEpochMs).
		Msg("timeline attached")
}

// Target returns the position the device should be at now
func (c *Controller) Target() (float64, bool) {
	spec := c.spec.Load()
	if spec == nil {
		return 0, false
	}
	now := c.clock.Now()
	localMs := float64(now.Unix())*1000 + float64(now.Nanosecond())/1e6
	return spec.Position(localMs + c.offsets.OffsetMs())
}

// Tick runs one control iteration. It returns false and does nothing when
// the timeline is unknown or degenerate.
func (c *Controller) Tick() (Action, bool) {
	want, ok := c.Target()
	if !ok {
		return Action{}, false
	}

	act := Decide(want, c.device.Position(), c.device.Running())
	c.apply(act)

	prev := State(c.state.Swap(int32(act.State)))
	if prev != act.State {
		log.Debug().
			Str("from", prev.String()).
			Str("to", act.State.String()).
			Float64("err_sec", act.ErrSec).
			Msg("playback control state changed")
	}
	c.last.Store(&act)
	c.ticks.Add(1)
	return act, true
}

func (c *Controller) apply(act Action) {
	if act.Seek {
		c.device.SetPosition(act.SeekTo)
	}
	if act.Start {
		if err := c.device.Start(); err != nil {
			log.Debug().Err(err).Msg("device start failed, retrying next frame")
		}
	}
	c.device.SetRate(act.Rate)
}

// Run ticks at the frame cadence until ctx is done. The ticker is stopped
// before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Uint64("ticks", c.ticks.Load()).Msg("playback controller stopped")
			return nil
		case <-ticker.Chan():
			c.Tick()
		}
	}
}

// Unmute makes playback audible and resumes the device
func (c *Controller) Unmute() error {
	if m, ok := c.device.(Muter); ok {
		m.SetMuted(false)
	}
	return c.device.Start()
}

// State returns the control state of the most recent tick
func (c *Controller) State() State {
	return State(c.state.Load())
}

// LastAction returns the action applied by the most recent tick
func (c *Controller) LastAction() (Action, bool) {
	act := c.last.Load()
	if act == nil {
		return Action{}, false
	}
	return *act, true
}

// Ticks returns how many control iterations have run
func (c *Controller) Ticks() uint64 {
	return c.ticks.Load()
}

// Status returns a short human readable status line
func (c *Controller) Status() string {
	spec := c.spec.Load()
	if spec == nil || spec.Validate() != nil {
		return statusWaiting
	}
	if m, ok := c.device.(Muter); ok && m.Muted() {
		return statusMuted
	}
	return statusLive
}
