package playback

import (
	"math"
	"testing"
)

func TestDecideStoppedDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		want     float64
		have     float64
		wantSeek bool
	}{
		{name: "far behind snaps", want: 10.0, have: 9.0, wantSeek: true},
		{name: "close enough resumes in place", want: 10.0, have: 9.85, wantSeek: false},
		{name: "ahead snaps", want: 10.0, have: 10.5, wantSeek: true},
		{name: "just inside threshold resumes in place", want: 10.0, have: 9.81, wantSeek: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := Decide(tt.want, tt.have, false)
			if act.Seek != tt.wantSeek {
				t.Fatalf("expected seek=%v, got %+v", tt.wantSeek, act)
			}
			if act.Seek && act.SeekTo != tt.want {
				t.Fatalf("expected seek to %v, got %v", tt.want, act.SeekTo)
			}
			if !act.Start {
				t.Fatalf("stopped device must be restarted")
			}
			if act.Rate != NormalRate {
				t.Fatalf("expected normal rate on resume, got %v", act.Rate)
			}
			if act.State != CorrectingHard {
				t.Fatalf("expected %s, got %s", CorrectingHard, act.State)
			}
		})
	}
}

func TestDecideRunningBoundary(t *testing.T) {
	t.Parallel()

	smooth := Decide(10.74, 10.0, true)
	if smooth.Seek || smooth.Start {
		t.Fatalf("err 0.74 must only adjust rate, got %+v", smooth)
	}
	if smooth.State != TrackingSmooth {
		t.Fatalf("expected %s, got %s", TrackingSmooth, smooth.State)
	}
	if smooth.Rate < 1-MaxRateDelta || smooth.Rate > 1+MaxRateDelta {
		t.Fatalf("rate %v outside clamp", smooth.Rate)
	}
	if math.Abs(smooth.Rate-1.03) > 1e-12 {
		t.Fatalf("expected clamped rate 1.03, got %v", smooth.Rate)
	}

	hard := Decide(10.76, 10.0, true)
	if !hard.Seek || hard.SeekTo != 10.76 {
		t.Fatalf("err 0.76 must hard seek, got %+v", hard)
	}
	if hard.Rate != NormalRate {
		t.Fatalf("hard correction must reset rate, got %v", hard.Rate)
	}
	if hard.State != CorrectingHard {
		t.Fatalf("expected %s, got %s", CorrectingHard, hard.State)
	}

	behind := Decide(9.0, 10.0, true)
	if !behind.Seek || behind.State != CorrectingHard {
		t.Fatalf("err -1.0 must hard seek, got %+v", behind)
	}
}

func TestDecideProportionalTracking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		errSec float64
		rate   float64
	}{
		{0, 1.0},
		{0.04, 1.01},
		{-0.04, 0.99},
		{0.12, 1.03},
		{-0.5, 0.97},
	}
	for _, tt := range tests {
		act := Decide(50+tt.errSec, 50, true)
		if math.Abs(act.Rate-tt.rate) > 1e-9 {
			t.Fatalf("err %v: expected rate %v, got %v", tt.errSec, tt.rate, act.Rate)
		}
	}
}

func TestTrackingRateAlwaysClamped(t *testing.T) {
	t.Parallel()

	for errSec := -1000.0; errSec <= 1000; errSec += 0.37 {
		rate := TrackingRate(errSec)
		if rate < 1-MaxRateDelta-1e-12 || rate > 1+MaxRateDelta+1e-12 {
			t.Fatalf("err %v: rate %v outside [0.97, 1.03]", errSec, rate)
		}
	}
	for _, errSec := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		rate := TrackingRate(errSec)
		if rate < 1-MaxRateDelta || rate > 1+MaxRateDelta {
			t.Fatalf("err %v: rate %v outside [0.97, 1.03]", errSec, rate)
		}
	}
}

func TestDecideUnknownDevicePositionCountsAsZero(t *testing.T) {
	t.Parallel()

	act := Decide(3.0, math.NaN(), true)
	if act.ErrSec != 3.0 || !act.Seek {
		t.Fatalf("expected NaN position treated as 0, got %+v", act)
	}
}
