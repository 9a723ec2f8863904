package clocksync

// SampleFilter decides which round-trip sample becomes the current estimate
type SampleFilter interface {
	// Add records sample and returns the estimate to publish
	Add(sample Estimate) Estimate
	// Reset forgets all samples (a new hello starts a fresh session)
	Reset()
}

// LatestSample publishes every sample as-is. Most recent always wins.
type LatestSample struct{}

func (LatestSample) Add(sample Estimate) Estimate { return sample }

func (LatestSample) Reset() {}

// MinRTTFilter publishes the lowest-RTT sample among the last Window samples.
// Samples with smaller round trips carry less possible asymmetry error.
type MinRTTFilter struct {
	Window  int
	samples []Estimate
}

// NewMinRTTFilter creates a filter over the last window samples
func NewMinRTTFilter(window int) *MinRTTFilter {
	if window < 1 {
		window = 1
	}
	return &MinRTTFilter{Window: window}
}

func (f *MinRTTFilter) Add(sample Estimate) Estimate {
	window := f.Window
	if window < 1 {
		window = 1
	}

	f.samples = append(f.samples, sample)
	if len(f.samples) > window {
		f.samples = f.samples[len(f.samples)-window:]
	}

	best := f.samples[0]
	for _, s := range f.samples[1:] {
		if s.RTTMs <= best.RTTMs {
			best = s
		}
	}
	return best
}

func (f *MinRTTFilter) Reset() {
	f.samples = nil
}
