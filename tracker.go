package emitsource

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DrainResolver resolves the deferred-work drain callable and its
// receiver context. It runs exactly once, lazily, on the first
// successful top-level callback invocation. Returning an error, or a nil
// callable, is a configuration invariant violation (see
// [WithDrainResolver]).
type DrainResolver func() (Callback, Value, error)

// FatalPolicy is the action taken after an uncaught callback error has
// been reported and its ancestor stack chain printed. See
// [WithFatalPolicy].
type FatalPolicy func(err *CallbackError)

// exitPolicy is the default FatalPolicy.
func exitPolicy(*CallbackError) {
	os.Exit(1)
}

// Tracker owns the shared state of causal tracking: the current-source
// slot, the pin set keeping active sources reachable, the lazily
// resolved deferred-work drain, and diagnostic configuration. Holding it
// all on a Tracker rather than in package globals keeps independent
// embeddings isolated.
//
// Thread Safety:
// A Tracker and all sources created from it must be driven from a single
// goroutine. Metrics may be read from any goroutine.
type Tracker struct {
	// Prevent copying
	_ [0]func()

	// current is the source whose callback is presently executing, nil
	// when no async callback is on the stack. It is exactly the top of
	// the dynamic call stack of nested invocations.
	current *AsyncSource

	// pinned keeps active sources strongly reachable so they cannot be
	// collected mid-flight. Counts nest so repeated Active calls balance.
	pinned map[*AsyncSource]int

	capture       Capturer
	frameLimit    int
	ancestorLimit int

	drainOnce     sync.Once
	drain         Callback
	drainRecv     Value
	drainResolver DrainResolver
	drainErr      error

	diag  io.Writer
	log   Logger
	fatal FatalPolicy

	metrics trackerMetrics
}

// NewTracker creates a Tracker.
//
// Without [WithDrain] or [WithDrainResolver] the first successful
// callback invocation panics with a [DrainResolutionError]; the drain is
// assumed always present by construction of the surrounding runtime.
func NewTracker(opts ...TrackerOption) (*Tracker, error) {
	cfg, err := resolveTrackerOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		pinned:        make(map[*AsyncSource]int),
		capture:       cfg.capture,
		frameLimit:    cfg.frameLimit,
		ancestorLimit: cfg.ancestorLimit,
		drain:         cfg.drain,
		drainRecv:     cfg.drainRecv,
		drainResolver: cfg.drainResolver,
		diag:          cfg.diagnostics,
		log:           cfg.logger,
		fatal:         cfg.fatal,
	}, nil
}

// NewSource creates an idle AsyncSource wrapping the given host object,
// which is expected to carry a "callback" property by the time
// [AsyncSource.MakeCallback] runs.
func (t *Tracker) NewSource(host Object) (*AsyncSource, error) {
	if host == nil {
		return nil, errNilHost
	}
	return &AsyncSource{tracker: t, host: host}, nil
}

// Current returns the source whose callback is presently executing, or
// nil when no async callback is on the stack.
func (t *Tracker) Current() *AsyncSource {
	return t.current
}

// pin keeps s strongly reachable until a matching unpin.
func (t *Tracker) pin(s *AsyncSource) {
	t.pinned[s]++
}

// unpin releases one pin on s. Calling it on an unpinned source is a
// no-op, so Inactive stays idempotent.
func (t *Tracker) unpin(s *AsyncSource) {
	switch n := t.pinned[s]; {
	case n > 1:
		t.pinned[s] = n - 1
	case n == 1:
		delete(t.pinned, s)
	}
}

// resolveDrain resolves the deferred-work drain exactly once.
func (t *Tracker) resolveDrain() (Callback, Value, error) {
	t.drainOnce.Do(func() {
		if t.drain != nil {
			return
		}
		if t.drainResolver == nil {
			t.drainErr = &DrainResolutionError{Cause: ErrNoDrain}
			return
		}
		drain, recv, err := t.drainResolver()
		if err != nil {
			t.drainErr = &DrainResolutionError{Cause: err}
			return
		}
		if drain == nil {
			t.drainErr = &DrainResolutionError{
				Message: "emitsource: drain resolver returned no callable",
			}
			return
		}
		t.drain = drain
		t.drainRecv = recv
	})
	return t.drain, t.drainRecv, t.drainErr
}

// drainDeferred runs one round of queued deferred work on behalf of s,
// via the same invocation primitive as the callback itself. A drain that
// cannot be resolved aborts: the runtime is assumed to always provide
// it, so there is no recoverable path.
func (t *Tracker) drainDeferred(s *AsyncSource) error {
	drain, recv, err := t.resolveDrain()
	if err != nil {
		fmt.Fprintf(t.diag, "%s. Bad.\n", err.Error())
		panic(err)
	}
	if _, err := s.invoke(drain, recv, nil); err != nil {
		return err
	}
	t.metrics.drains.Add(1)
	return nil
}

// Metrics returns a snapshot of the tracker's counters.
func (t *Tracker) Metrics() TrackerMetrics {
	return t.metrics.snapshot()
}
