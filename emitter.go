package emitsource

import (
	"io"
)

// Emitter fires named events to the listeners stored on a host object's
// subscriber table.
//
// The subscriber table is the Object stored under the host's "_events"
// property, mapping event name to either a single [Callback] or a
// []Value of callbacks. Registration (add/remove/once) is owned by the
// embedding code; Emitter only reads the table.
//
// Emitter holds no per-event state and does not participate in causal
// tracking; it can be shared with or used independently of a [Tracker].
//
// Thread Safety:
// Emitter must be driven from a single goroutine, consistent with the
// package's execution model.
type Emitter struct {
	host Object
	diag io.Writer
	log  Logger
}

// NewEmitter creates an Emitter for the given host object.
//
// Returns an error only when an option is invalid.
func NewEmitter(host Object, opts ...EmitterOption) (*Emitter, error) {
	if host == nil {
		return nil, errNilHost
	}
	cfg, err := resolveEmitterOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Emitter{
		host: host,
		diag: cfg.diagnostics,
		log:  cfg.logger,
	}, nil
}

// Host returns the wrapped host object.
func (e *Emitter) Host() Object {
	return e.host
}

// Emit fires the named event to the currently registered listeners,
// synchronously, in registration order, with the host object as the
// receiver context of each call.
//
// The stored value for the event may be a single callable (fast path) or
// an ordered sequence. The sequence is snapshotted before iteration:
// listeners that mutate the live registry during this emission cannot
// skip or duplicate entries, listeners added during the emission are not
// called by it, and listeners removed during the emission are still
// called if they were present at snapshot time. Non-callable sequence
// entries are skipped.
//
// Returns true when a recognized listener container was found for the
// event (including an empty sequence), false otherwise. A missing or
// wrong-shaped subscriber table is not an error: Emit returns false with
// no diagnostic output.
//
// If a listener raises an uncaught error, Emit reports it on the
// diagnostic stream, abandons the remaining listeners in the snapshot,
// and returns false.
func (e *Emitter) Emit(event string, args ...Value) bool {
	table, ok := e.host.Get(eventsProperty)
	if !ok {
		return false
	}
	tbl, ok := table.(Object)
	if !ok {
		return false
	}

	stored, _ := tbl.Get(event)

	switch v := stored.(type) {
	case Callback:
		// Optimized one-listener case
		if _, err := invokeCallable(v, e.host, args); err != nil {
			reportUncaught(e.diag, e.log, event, err)
			return false
		}

	case []Value:
		for _, entry := range cloneSequence(v) {
			fn, ok := entry.(Callback)
			if !ok {
				continue
			}
			if _, err := invokeCallable(fn, e.host, args); err != nil {
				reportUncaught(e.diag, e.log, event, err)
				return false
			}
		}

	default:
		return false
	}

	return true
}
