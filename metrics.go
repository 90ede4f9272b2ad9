package emitsource

import "sync/atomic"

// trackerMetrics holds the tracker's hot-path counters. Plain atomics:
// the cost is a few uncontended adds per invocation.
type trackerMetrics struct {
	invocations atomic.Uint64
	drains      atomic.Uint64
	uncaught    atomic.Uint64
}

func (m *trackerMetrics) snapshot() TrackerMetrics {
	return TrackerMetrics{
		Invocations:    m.invocations.Load(),
		Drains:         m.drains.Load(),
		UncaughtErrors: m.uncaught.Load(),
	}
}

// TrackerMetrics is a point-in-time snapshot of a Tracker's counters,
// safe to read from any goroutine via [Tracker.Metrics].
type TrackerMetrics struct {
	// Invocations counts callback invocations that completed without an
	// uncaught error, including drain invocations.
	Invocations uint64

	// Drains counts completed deferred-work drain rounds.
	Drains uint64

	// UncaughtErrors counts invocations that raised an uncaught error.
	UncaughtErrors uint64
}
