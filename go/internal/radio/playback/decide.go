package playback

import "math"

const (
	// StoppedSnapThresholdSec is the error above which a stopped device is re-seeked before restart
	StoppedSnapThresholdSec = 0.2
	// RunningSnapThresholdSec is the error above which a running device is hard-corrected
	RunningSnapThresholdSec = 0.75
	// Gain is the proportional gain applied to the error when tracking
	Gain = 0.25
	// MaxRateDelta bounds the speed change applied while tracking (±3%)
	MaxRateDelta = 0.03
	// NormalRate is regular playback speed
	NormalRate = 1.0
)

// State is the controller's control state
type State int

const (
	// CorrectingHard forces the cursor onto the target
	CorrectingHard State = iota
	// TrackingSmooth nudges the cursor toward the target via playback rate
	TrackingSmooth
)

func (s State) String() string {
	switch s {
	case CorrectingHard:
		return "correcting_hard"
	case TrackingSmooth:
		return "tracking_smooth"
	default:
		return "unknown"
	}
}

// Action is the corrective step computed for one frame
type Action struct {
	State State
	// ErrSec is want minus have
	ErrSec float64
	// Seek requests a discontinuous jump to SeekTo
	Seek   bool
	SeekTo float64
	// Start requests the device resume playback
	Start bool
	Rate  float64
}

// Decide is the controller's transition function. It maps the target
// position, the device position and whether the device is running to the
// next state and the corrective action to take.
func Decide(wantSec, haveSec float64, running bool) Action {
	if math.IsNaN(haveSec) || math.IsInf(haveSec, 0) {
		haveSec = 0
	}
	errSec := wantSec - haveSec
	act := Action{ErrSec: errSec, SeekTo: wantSec}

	switch {
	case !running:
		act.State = CorrectingHard
		act.Seek = math.Abs(errSec) > StoppedSnapThresholdSec
		act.Start = true
		act.Rate = NormalRate

	case math.Abs(errSec) > RunningSnapThresholdSec:
		act.State = CorrectingHard
		act.Seek = true
		act.Rate = NormalRate

	default:
		act.State = TrackingSmooth
		act.Rate = TrackingRate(errSec)
	}
	return act
}

// TrackingRate returns the clamped proportional rate for errSec
func TrackingRate(errSec float64) float64 {
	if math.IsNaN(errSec) {
		return NormalRate
	}
	correction := math.Max(-MaxRateDelta, math.Min(MaxRateDelta, errSec*Gain))
	return NormalRate + correction
}
