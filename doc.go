// Package emitsource provides synchronous named-event dispatch and causal
// tracking of asynchronous callback activity for single-threaded,
// callback-driven runtimes embedded in Go.
//
// # Architecture
//
// The package is built around two independent capabilities that both wrap
// host objects at an embedding boundary:
//
//   - [Emitter] fires a named event to whatever listeners are currently
//     stored in the host object's subscriber table, synchronously and in
//     registration order, snapshotting the listener sequence before
//     iteration so listeners may mutate the live registry mid-emission.
//   - [AsyncSource] represents one in-flight asynchronous activity. It
//     invokes the wrapped object's callback, maintains the "current
//     source" slot on its [Tracker] so nested scheduling can record
//     causal parent links, and on an uncaught error prints the recorded
//     stack trace plus the chain of ancestor stacks before applying the
//     tracker's fatal policy.
//
// A [Tracker] owns the mutable state shared by every source it creates:
// the current-source slot, the pin set that keeps active
// sources reachable, the lazily resolved deferred-work drain, and the
// diagnostic configuration. Emitters do not participate in causal
// tracking and can be used without a Tracker.
//
// # Host Boundary
//
// The core never assumes a particular object system. A host object is
// anything implementing [Object] (named property access); callables cross
// the boundary as [Callback] values and listener sequences as []Value.
// [MapObject] is a minimal map-backed host object for pure-Go embedders
// and tests. The gojaemit subpackage adapts the core to the
// github.com/dop251/goja JavaScript runtime, including real stack capture
// with line and column data.
//
// # Thread Safety
//
// The execution model is single-threaded and reentrant by nested
// synchronous call only. Emitter, AsyncSource, and Tracker must be driven
// from one goroutine. The sole exception is the weak parent link, whose
// on-reclaim notification runs on the garbage collector's cleanup
// goroutine and is internally synchronized.
//
// # Error Types
//
//   - [CallbackError]: an invoked async callback raised an uncaught
//     error; carries the source whose invocation raised it.
//   - [PanicError]: wraps a value recovered from a panicking Go callback.
//   - [DrainResolutionError]: the deferred-work drain could not be
//     resolved to a callable (a configuration invariant violation).
//
// All error types implement [error], and support [errors.Unwrap] where a
// cause exists.
package emitsource
