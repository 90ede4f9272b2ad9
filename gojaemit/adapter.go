// Package gojaemit binds the emitsource core to the Goja JavaScript
// runtime.
//
// The adapter implements the core's host-object boundary over
// [goja.Object]: property access, runtime kind tests, callable
// invocation with an explicit receiver, sequence snapshotting, and stack
// capture with real line and column data via
// [goja.Runtime.CaptureCallStack].
//
// # Usage
//
//	vm := goja.New()
//	adapter, err := gojaemit.New(vm)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Fire an event to listeners registered by script code.
//	obj := vm.Get("someEmitter").ToObject(vm)
//	em, _ := adapter.Emitter(obj)
//	em.Emit("data", 1, 2)
//
//	// Track an async callback with causal stacks.
//	src, _ := adapter.Source(vm.Get("req").ToObject(vm))
//	src.Active()
//	src.MakeCallback()
//	src.Inactive()
//
// The deferred-work drain is resolved lazily from the script-visible
// process._tickCallback, exactly once, on the first successful callback
// invocation. The surrounding runtime is expected to provide it; if the
// lookup does not yield a callable the tracker aborts.
//
// # Thread Safety
//
// Goja runtimes are not safe for concurrent use. The adapter inherits
// the core's single-goroutine execution model: drive the adapter, its
// emitters, and its sources from the goroutine that owns the runtime.
package gojaemit

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dop251/goja"
	emitsource "github.com/tobie/go-emitsource"
)

// Adapter bridges a Goja runtime to the emitsource core.
type Adapter struct {
	vm          *goja.Runtime
	tracker     *emitsource.Tracker
	emitterOpts []emitsource.EmitterOption
}

// New creates an adapter for the given runtime.
//
// The underlying Tracker is configured with a JavaScript stack capturer
// and the process._tickCallback drain resolver; additional
// TrackerOptions (diagnostics, logger, limits, fatal policy) are applied
// on top and may not override the capturer or resolver with nil.
func New(vm *goja.Runtime, opts ...emitsource.TrackerOption) (*Adapter, error) {
	if vm == nil {
		return nil, errors.New("gojaemit: runtime cannot be nil")
	}

	a := &Adapter{vm: vm}

	base := []emitsource.TrackerOption{
		emitsource.WithCapturer(a.captureStack),
		emitsource.WithDrainResolver(a.resolveTickCallback),
	}
	tracker, err := emitsource.NewTracker(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gojaemit: failed to create tracker: %w", err)
	}
	a.tracker = tracker

	return a, nil
}

// Runtime returns the Goja runtime.
func (a *Adapter) Runtime() *goja.Runtime {
	return a.vm
}

// Tracker returns the adapter's tracker.
func (a *Adapter) Tracker() *emitsource.Tracker {
	return a.tracker
}

// Emitter wraps obj as an event-emitting host object. The emitter reads
// the object's _events table; registration is left to script code.
func (a *Adapter) Emitter(obj *goja.Object, opts ...emitsource.EmitterOption) (*emitsource.Emitter, error) {
	if obj == nil {
		return nil, errors.New("gojaemit: object cannot be nil")
	}
	return emitsource.NewEmitter(hostObject{vm: a.vm, obj: obj}, opts...)
}

// Source wraps obj, which is expected to carry a callback property, as
// an async source on the adapter's tracker.
func (a *Adapter) Source(obj *goja.Object) (*emitsource.AsyncSource, error) {
	if obj == nil {
		return nil, errors.New("gojaemit: object cannot be nil")
	}
	return a.tracker.NewSource(hostObject{vm: a.vm, obj: obj})
}

// Bind performs the one-time class registration: it installs an
// EventEmitter constructor on the runtime's global object whose emit
// prototype method is backed by the core Emit semantics. All other
// prototype methods (addListener, removeListener, once) are expected to
// be defined by script code.
//
// The given EmitterOptions configure the emitters backing script-level
// emit calls.
func (a *Adapter) Bind(opts ...emitsource.EmitterOption) error {
	a.emitterOpts = opts

	ctor := a.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		return call.This
	}).ToObject(a.vm)

	protoVal := ctor.Get("prototype")
	if protoVal == nil {
		return errors.New("gojaemit: constructor has no prototype")
	}
	proto, ok := protoVal.(*goja.Object)
	if !ok {
		return errors.New("gojaemit: constructor prototype is not an object")
	}

	if err := proto.Set("emit", a.jsEmit); err != nil {
		return fmt.Errorf("gojaemit: failed to install emit: %w", err)
	}
	if err := a.vm.Set("EventEmitter", ctor); err != nil {
		return fmt.Errorf("gojaemit: failed to install EventEmitter: %w", err)
	}
	return nil
}

// jsEmit backs EventEmitter.prototype.emit.
func (a *Adapter) jsEmit(call goja.FunctionCall) goja.Value {
	this := call.This.ToObject(a.vm)
	host := hostObject{vm: a.vm, obj: this}

	em, err := emitsource.NewEmitter(host, a.emitterOpts...)
	if err != nil {
		panic(a.vm.NewGoError(err))
	}

	event := call.Argument(0).String()
	var args []emitsource.Value
	if len(call.Arguments) > 1 {
		// Arguments stay opaque runtime values, preserving object and
		// function identity across the dispatch; translation applies
		// only when reading the listener table.
		args = make([]emitsource.Value, 0, len(call.Arguments)-1)
		for _, arg := range call.Arguments[1:] {
			args = append(args, arg)
		}
	}

	return a.vm.ToValue(em.Emit(event, args...))
}

// captureStack is the Tracker's Capturer: a bounded snapshot of the
// JavaScript call stack. Outside script execution it yields no frames.
func (a *Adapter) captureStack(limit int) []emitsource.Frame {
	frames := a.vm.CaptureCallStack(limit, nil)
	if len(frames) == 0 {
		return nil
	}
	out := make([]emitsource.Frame, 0, len(frames))
	for i := range frames {
		pos := frames[i].Position()
		out = append(out, emitsource.Frame{
			Function: frames[i].FuncName(),
			Source:   frames[i].SrcName(),
			Line:     pos.Line,
			Column:   pos.Column,
		})
	}
	return out
}

// resolveTickCallback is the Tracker's DrainResolver: the lazy one-time
// lookup of process._tickCallback off the global object.
func (a *Adapter) resolveTickCallback() (emitsource.Callback, emitsource.Value, error) {
	processVal := a.vm.GlobalObject().Get("process")
	if processVal == nil || goja.IsUndefined(processVal) || goja.IsNull(processVal) {
		return nil, nil, errors.New("gojaemit: process undefined")
	}
	process := processVal.ToObject(a.vm)

	tickVal := process.Get("_tickCallback")
	if tickVal == nil || goja.IsUndefined(tickVal) || goja.IsNull(tickVal) {
		return nil, nil, errors.New("gojaemit: process._tickCallback undefined")
	}
	fn, ok := goja.AssertFunction(tickVal)
	if !ok {
		return nil, nil, errors.New("gojaemit: process._tickCallback is not a function")
	}

	host := hostObject{vm: a.vm, obj: process}
	return host.callback(fn), host, nil
}

// hostObject implements emitsource.Object over a goja object,
// translating property values into the shapes the core recognizes.
type hostObject struct {
	vm  *goja.Runtime
	obj *goja.Object
}

// Get implements emitsource.Object. Undefined and null read as absent.
func (h hostObject) Get(name string) (emitsource.Value, bool) {
	v := h.obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	return h.translate(v), true
}

// translate maps a goja value to the core's boundary shapes: functions
// become Callbacks, arrays become []Value snapshots, other objects
// become nested host objects, and primitives are exported as Go values.
func (h hostObject) translate(v goja.Value) emitsource.Value {
	if fn, ok := goja.AssertFunction(v); ok {
		return h.callback(fn)
	}
	if obj, ok := v.(*goja.Object); ok {
		if obj.ClassName() == "Array" {
			return h.cloneArray(obj)
		}
		return hostObject{vm: h.vm, obj: obj}
	}
	return v.Export()
}

// callback wraps a goja callable into the core's Callback shape. An
// exception thrown by the script surfaces as the returned error.
func (h hostObject) callback(fn goja.Callable) emitsource.Callback {
	return func(recv emitsource.Value, args ...emitsource.Value) (emitsource.Value, error) {
		jsArgs := make([]goja.Value, len(args))
		for i, arg := range args {
			jsArgs[i] = h.jsValue(arg)
		}
		ret, err := fn(h.jsValue(recv), jsArgs...)
		if err != nil {
			return nil, err
		}
		if ret == nil || goja.IsUndefined(ret) || goja.IsNull(ret) {
			return nil, nil
		}
		return ret.Export(), nil
	}
}

// jsValue maps a core boundary value back into the runtime.
func (h hostObject) jsValue(v emitsource.Value) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Undefined()
	case hostObject:
		return x.obj
	case goja.Value:
		return x
	default:
		return h.vm.ToValue(x)
	}
}

// cloneArray materializes an array's elements, which doubles as the
// value-level snapshot the core's Emit takes before iterating.
func (h hostObject) cloneArray(arr *goja.Object) []emitsource.Value {
	length := int(arr.Get("length").ToInteger())
	out := make([]emitsource.Value, 0, length)
	for i := 0; i < length; i++ {
		v := arr.Get(strconv.Itoa(i))
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			out = append(out, nil)
			continue
		}
		out = append(out, h.translate(v))
	}
	return out
}
