package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const tolerance = 1e-6

func TestPositionWellFormed(t *testing.T) {
	t.Parallel()

	specs := []Spec{
		{DurationSec: 100, AnchorEpochMs: 0},
		{DurationSec: 4920, AnchorEpochMs: 1_700_000_000_000},
		{DurationSec: 0.25, AnchorEpochMs: -42},
		{DurationSec: 214.62, AnchorEpochMs: 123456},
	}
	times := []float64{
		-1e13, -1_000_001.5, -50000, -0.001, 0, 0.001, 999.999,
		100000, 1_700_000_000_000, 1_760_000_000_123.456, 1e15,
	}

	for _, spec := range specs {
		for _, tMs := range times {
			pos, ok := spec.Position(tMs)
			if !ok {
				t.Fatalf("spec %+v at %v: expected defined position", spec, tMs)
			}
			if pos < 0 || pos >= spec.DurationSec {
				t.Fatalf("spec %+v at %v: position %v outside [0, %v)", spec, tMs, pos, spec.DurationSec)
			}
		}
	}
}

func TestPositionPeriodic(t *testing.T) {
	t.Parallel()

	spec := Spec{DurationSec: 100, AnchorEpochMs: 7}
	for _, tMs := range []float64{-123456.5, -1, 0, 3, 49_999, 1_000_000.25} {
		a, _ := spec.Position(tMs)
		b, _ := spec.Position(tMs + spec.DurationSec*1000)
		diff := math.Abs(a - b)
		// wrap-around near zero compares as the loop length apart
		diff = math.Min(diff, spec.DurationSec-diff)
		if diff > tolerance {
			t.Fatalf("position at %v = %v, one loop later = %v", tMs, a, b)
		}
	}
}

func TestPositionNegativeElapsed(t *testing.T) {
	t.Parallel()

	spec := Spec{DurationSec: 100, AnchorEpochMs: 0}
	pos, ok := spec.Position(-50000)
	if !ok {
		t.Fatalf("expected defined position")
	}
	if math.Abs(pos-50.0) > tolerance {
		t.Fatalf("expected 50.0, got %v", pos)
	}
}

func TestPositionWraps(t *testing.T) {
	t.Parallel()

	spec := Spec{DurationSec: 100, AnchorEpochMs: 0}
	tests := []struct {
		tMs  float64
		want float64
	}{
		{0, 0},
		{5000, 5},
		{102000, 2},
		{99999, 99.999},
		{-1, 99.999},
	}
	for _, tt := range tests {
		got, _ := spec.Position(tt.tMs)
		if math.Abs(got-tt.want) > tolerance {
			t.Fatalf("Position(%v) = %v, want %v", tt.tMs, got, tt.want)
		}
	}
}

func TestPositionDegenerateSpec(t *testing.T) {
	t.Parallel()

	for _, spec := range []Spec{
		{DurationSec: 0},
		{DurationSec: -5},
		{DurationSec: math.NaN()},
		{DurationSec: math.Inf(1)},
	} {
		if err := spec.Validate(); err == nil {
			t.Fatalf("spec %+v: expected validation error", spec)
		}
		if pos, ok := spec.Position(12345); ok || pos != 0 {
			t.Fatalf("spec %+v: expected undefined position, got %v ok=%v", spec, pos, ok)
		}
	}
}

func TestAuthorityPositionNow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.UnixMilli(5000))
	authority := NewAuthority(Spec{DurationSec: 100, AnchorEpochMs: 0}, clock)

	if got := authority.NowMs(); got != 5000 {
		t.Fatalf("expected NowMs 5000, got %d", got)
	}
	pos, ok := authority.PositionNow()
	if !ok || math.Abs(pos-5.0) > tolerance {
		t.Fatalf("expected position 5.0, got %v ok=%v", pos, ok)
	}

	clock.Advance(97 * time.Second)
	pos, _ = authority.PositionNow()
	if math.Abs(pos-2.0) > tolerance {
		t.Fatalf("expected wrapped position 2.0, got %v", pos)
	}
	if authority.Uptime() != 97*time.Second {
		t.Fatalf("expected uptime 97s, got %s", authority.Uptime())
	}
}
