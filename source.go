package emitsource

import (
	"runtime"
	"sync"
	"weak"
)

// AsyncSource tracks one in-flight asynchronous activity: the host
// object carrying its callback, the stack trace captured when it became
// active, and a weak causal link to the source that was current at
// capture time.
//
// Lifecycle: a source is created idle via [Tracker.NewSource], becomes
// active when the operation is about to run ([AsyncSource.Active]), may
// have its callback invoked any number of times while active
// ([AsyncSource.MakeCallback]), and returns to idle when the operation
// completes or is cancelled ([AsyncSource.Inactive]). The source itself
// is reclaimed by the garbage collector once the embedder and the
// tracker's pin set drop it.
type AsyncSource struct {
	tracker *Tracker

	// host is the wrapped object believed to expose a "callback"
	// property. The source observes its lifetime but does not own it.
	host Object

	// trace is the stack captured at the most recent Active, nil while
	// idle. Exclusive to this source.
	trace []Frame

	// The parent link is weak with respect to the object graph: it must
	// not keep the causal predecessor alive, and reads as absent once the
	// predecessor is collected. The cleanup notification runs on the GC's
	// cleanup goroutine, hence the mutex.
	parentMu      sync.Mutex
	parent        weak.Pointer[AsyncSource]
	parentCleanup runtime.Cleanup
	parentSet     bool
}

// Host returns the wrapped host object.
func (s *AsyncSource) Host() Object {
	return s.host
}

// Active marks the source as about to run: it pins the source against
// collection, captures the current execution stack (bounded by the
// tracker's frame limit), and records a weak causal link to the
// tracker's current source, if any. A source re-armed from inside its
// own callback, as a repeating operation does, links to itself.
//
// Calling Active on an already-active source first performs the
// equivalent of Inactive's teardown (link severed, trace reclaimed)
// before recapturing, so the previous trace never leaks.
func (s *AsyncSource) Active() {
	s.tracker.pin(s)
	s.recordStack()
}

// Inactive marks the source as completed or cancelled: it severs the
// causal link, clears the captured trace, and releases the pin taken by
// Active. Safe to call on an already-idle source.
func (s *AsyncSource) Inactive() {
	s.deleteParent()
	s.clearStack()
	s.tracker.unpin(s)
}

// Parent returns the causal predecessor recorded at the last Active, or
// nil if none was recorded, the link was severed, or the predecessor has
// been collected.
func (s *AsyncSource) Parent() *AsyncSource {
	s.parentMu.Lock()
	defer s.parentMu.Unlock()
	if !s.parentSet {
		return nil
	}
	return s.parent.Value()
}

// recordStack captures a fresh trace and parent link, tearing down any
// prior ones first.
func (s *AsyncSource) recordStack() {
	s.deleteParent()
	s.clearStack()

	s.trace = s.tracker.capture(s.tracker.frameLimit)

	if cur := s.tracker.current; cur != nil {
		s.setParent(cur)
	}
}

func (s *AsyncSource) clearStack() {
	s.trace = nil
}

// setParent records parent as the causal predecessor. The link is weak:
// parent's reachability is unaffected, and its collection clears the
// link via the registered cleanup before s could dereference it. The
// cleanup holds only weak handles, so it pins neither side.
func (s *AsyncSource) setParent(parent *AsyncSource) {
	s.parentMu.Lock()
	defer s.parentMu.Unlock()
	link := weak.Make(parent)
	s.parent = link
	s.parentSet = true
	if parent == s {
		// A source re-armed from inside its own callback is its own
		// predecessor. The link cannot outlive the source, so no reclaim
		// notification is needed (nor can one be registered against the
		// same pointer).
		s.parentCleanup = runtime.Cleanup{}
		return
	}
	child := weak.Make(s)
	s.parentCleanup = runtime.AddCleanup(parent, func(child weak.Pointer[AsyncSource]) {
		c := child.Value()
		if c == nil {
			return
		}
		c.parentMu.Lock()
		// The notification may already have been queued when the link
		// was severed and re-recorded; clear only a matching link.
		if c.parentSet && c.parent == link {
			c.parent = weak.Pointer[AsyncSource]{}
			c.parentSet = false
			c.parentCleanup = runtime.Cleanup{}
		}
		c.parentMu.Unlock()
	}, child)
}

// deleteParent severs the causal link: the reclaim notification is
// unregistered first, then the reference dropped. No-op when no link is
// set.
func (s *AsyncSource) deleteParent() {
	s.parentMu.Lock()
	defer s.parentMu.Unlock()
	if !s.parentSet {
		return
	}
	s.parentCleanup.Stop()
	s.parentCleanup = runtime.Cleanup{}
	s.parent = weak.Pointer[AsyncSource]{}
	s.parentSet = false
}

// PrintStack writes the recorded trace to the tracker's diagnostic
// stream, one separator-prefixed section of "    at fn (src:line:col)"
// lines, then recursively the traces of up to the tracker's ancestor
// limit of causal predecessors. No-op when no trace is recorded.
func (s *AsyncSource) PrintStack() {
	s.printStack(0)
}

func (s *AsyncSource) printStack(depth int) {
	if len(s.trace) == 0 {
		return
	}

	writeStackSection(s.tracker.diag, s.trace)

	if parent := s.Parent(); parent != nil && depth < s.tracker.ancestorLimit {
		parent.printStack(depth + 1)
	}
}

// invoke is the invocation primitive: it makes s the tracker's current
// source, calls fn, and restores the prior current source synchronously,
// before any error handling, so arbitrarily nested synchronous
// invocations observe exactly the nearest enclosing source.
//
// An uncaught error is reported on the diagnostic stream with the
// ancestor stack chain, counted, and handed to the tracker's fatal
// policy. The default policy terminates the process; a substituted
// policy that returns causes invoke to return a [*CallbackError].
func (s *AsyncSource) invoke(fn Callback, recv Value, args []Value) (Value, error) {
	t := s.tracker

	prev := t.current
	t.current = s

	ret, err := invokeCallable(fn, recv, args)

	t.current = prev

	if err != nil {
		t.metrics.uncaught.Add(1)
		cbErr := &CallbackError{Cause: err, Source: s}
		reportUncaught(t.diag, t.log, "", err)
		s.PrintStack()
		t.fatal(cbErr)
		return nil, cbErr
	}

	t.metrics.invocations.Add(1)
	return ret, nil
}

// MakeCallback invokes the host object's "callback" property with the
// given arguments and the host object as receiver, then runs one round
// of the deferred-work drain.
//
// A missing or non-callable callback property yields (nil, nil) without
// invoking anything and without draining. After a successful invocation
// the tracker's drain callable (resolved lazily, once) is invoked with
// no arguments, purely for its side effects; its return value is
// discarded and MakeCallback returns the original callback's result.
//
// On an uncaught error, from the callback or the drain, the fatal path
// of invoke applies; if the fatal policy returns, MakeCallback returns
// (nil, *CallbackError).
func (s *AsyncSource) MakeCallback(args ...Value) (Value, error) {
	cb, ok := s.host.Get(callbackProperty)
	if !ok {
		return nil, nil
	}
	fn, ok := cb.(Callback)
	if !ok {
		return nil, nil
	}

	ret, err := s.invoke(fn, s.host, args)
	if err != nil {
		return nil, err
	}

	// After every callback, run pending deferred work.
	if err := s.tracker.drainDeferred(s); err != nil {
		return nil, err
	}

	return ret, nil
}
