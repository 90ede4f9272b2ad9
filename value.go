package emitsource

// Value is any value observed at the host-object embedding boundary.
//
// The core recognizes three shapes: a [Callback] (a callable), a []Value
// (an ordered sequence, typically of callables), and an [Object] (a
// property bag such as a listener table). Everything else is opaque and
// passed through to callbacks untouched.
type Value = any

// Callback is a callable crossing the host boundary.
//
// recv is the receiver context ("this" binding) for the call. A non-nil
// error return models an uncaught error raised by the callable; the core
// never continues past one (see [Emitter.Emit] and
// [AsyncSource.MakeCallback]).
type Callback func(recv Value, args ...Value) (Value, error)

// Object is the host-object boundary: named property access.
//
// Get returns the value stored under name, and whether one was present.
// Absent and present-but-undefined are both reported as false; the core
// treats them identically.
type Object interface {
	Get(name string) (Value, bool)
}

// MapObject is a minimal map-backed [Object] for pure-Go embedders and
// tests. Nested tables are themselves MapObject values.
type MapObject map[string]Value

// Get implements [Object].
func (m MapObject) Get(name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}

// Well-known host property names.
const (
	// eventsProperty is the subscriber-table property on emitting objects.
	eventsProperty = "_events"

	// callbackProperty is the callback property on async source objects.
	callbackProperty = "callback"
)

// invokeCallable calls fn with the given receiver and arguments,
// converting a panic into a [PanicError] so both failure modes surface
// through the single error return.
func invokeCallable(fn Callback, recv Value, args []Value) (ret Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			ret = nil
			err = &PanicError{Value: r}
		}
	}()
	return fn(recv, args...)
}

// cloneSequence takes the value-level snapshot iterated by
// [Emitter.Emit]. Mutations of the live sequence after this point do not
// affect the returned copy.
func cloneSequence(seq []Value) []Value {
	return append([]Value(nil), seq...)
}
