package events

import (
	"context"
	"sync/atomic"
	"time"
)

// MetricsCollector records the outcome of session event publishing
type MetricsCollector interface {
	RecordPublish(eventType EventType, success bool, duration time.Duration)
}

// NoOpMetricsCollector discards everything
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(EventType, bool, time.Duration) {}

// CountingMetrics keeps in-process publish counters
type CountingMetrics struct {
	published atomic.Uint64
	failed    atomic.Uint64
	totalNs   atomic.Int64
}

func (m *CountingMetrics) RecordPublish(_ EventType, success bool, duration time.Duration) {
	if success {
		m.published.Add(1)
	} else {
		m.failed.Add(1)
	}
	m.totalNs.Add(int64(duration))
}

// Snapshot returns published and failed counts and the mean publish latency
func (m *CountingMetrics) Snapshot() (published, failed uint64, mean time.Duration) {
	published = m.published.Load()
	failed = m.failed.Load()
	if n := published + failed; n > 0 {
		mean = time.Duration(m.totalNs.Load() / int64(n))
	}
	return published, failed, mean
}

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector) *MetricPublisher {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event SessionEvent) error {
	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordPublish(event.Type, err == nil, time.Since(start))
	return err
}

func (p *MetricPublisher) Close() error {
	return p.publisher.Close()
}
