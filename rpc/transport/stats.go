package transport

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

// Stats holds the per transport counters. Process wide byte and frame counters
// live in the driver package.
type Stats struct {
	registry   metrics.Registry
	requests   metrics.Counter
	failures   metrics.Counter
	lockMisses metrics.Counter
	runs       metrics.Counter
	latency    metrics.Histogram // request latency in microseconds
}

func newStats() *Stats {
	s := &Stats{
		registry:   metrics.NewRegistry(),
		requests:   metrics.NewCounter(),
		failures:   metrics.NewCounter(),
		lockMisses: metrics.NewCounter(),
		runs:       metrics.NewCounter(),
		latency:    metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015)),
	}
	_ = s.registry.Register("requests", s.requests)
	_ = s.registry.Register("failures", s.failures)
	_ = s.registry.Register("lock_misses", s.lockMisses)
	_ = s.registry.Register("runs", s.runs)
	_ = s.registry.Register("latency_us", s.latency)
	return s
}

// StatsSnapshot is a point in time copy of the transport statistics
type StatsSnapshot struct {
	Requests   int64
	Failures   int64
	LockMisses int64
	Runs       int64

	LatencyMean time.Duration
	LatencyP99  time.Duration
}

// Stats returns a snapshot of the transport statistics
func (t *Transport) Stats() StatsSnapshot {
	latency := t.stats.latency.Snapshot()
	return StatsSnapshot{
		Requests:    t.stats.requests.Count(),
		Failures:    t.stats.failures.Count(),
		LockMisses:  t.stats.lockMisses.Count(),
		Runs:        t.stats.runs.Count(),
		LatencyMean: time.Duration(latency.Mean()) * time.Microsecond,
		LatencyP99:  time.Duration(latency.Percentile(0.99)) * time.Microsecond,
	}
}

// Registry exposes the metrics registry of the transport, e.g. for metrics.WriteOnce
func (t *Transport) Registry() metrics.Registry {
	return t.stats.registry
}
