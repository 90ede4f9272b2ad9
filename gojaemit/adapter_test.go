package gojaemit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	emitsource "github.com/tobie/go-emitsource"
)

// newTestAdapter builds an adapter with buffered diagnostics and a
// recording fatal policy in place of process termination.
func newTestAdapter(t *testing.T) (*Adapter, *goja.Runtime, *bytes.Buffer, *[]*emitsource.CallbackError) {
	t.Helper()
	vm := goja.New()
	var diag bytes.Buffer
	var fatals []*emitsource.CallbackError
	adapter, err := New(vm,
		emitsource.WithDiagnostics(&diag),
		emitsource.WithFatalPolicy(func(err *emitsource.CallbackError) {
			fatals = append(fatals, err)
		}),
	)
	require.NoError(t, err)
	return adapter, vm, &diag, &fatals
}

func TestNew_NilRuntime(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestAdapter_Accessors(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)
	assert.Same(t, vm, adapter.Runtime())
	assert.NotNil(t, adapter.Tracker())
}

func TestAdapter_EmitOrderAndReceiver(t *testing.T) {
	adapter, vm, diag, _ := newTestAdapter(t)

	_, err := vm.RunString(`
		var calls = [];
		var obj = {};
		obj._events = {
			x: [
				function (a, b) { calls.push("f:" + a + ":" + b + ":" + (this === obj)); },
				function (a, b) { calls.push("g:" + a + ":" + b + ":" + (this === obj)); },
				function (a, b) { calls.push("h:" + a + ":" + b + ":" + (this === obj)); }
			]
		};
	`)
	require.NoError(t, err)

	obj := vm.Get("obj").ToObject(vm)
	em, err := adapter.Emitter(obj, emitsource.WithEmitterDiagnostics(diag))
	require.NoError(t, err)

	assert.True(t, em.Emit("x", 1, 2))

	calls := vm.Get("calls").Export()
	assert.Equal(t, []any{"f:1:2:true", "g:1:2:true", "h:1:2:true"}, calls)
	assert.Zero(t, diag.Len(), "no diagnostic output expected")
}

func TestAdapter_EmitSingleListener(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)

	_, err := vm.RunString(`
		var got = null;
		var obj = { _events: { ping: function (v) { got = v; } } };
	`)
	require.NoError(t, err)

	em, err := adapter.Emitter(vm.Get("obj").ToObject(vm))
	require.NoError(t, err)

	assert.True(t, em.Emit("ping", "pong"))
	assert.Equal(t, "pong", vm.Get("got").Export())
}

func TestAdapter_EmitNoListeners(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)

	_, err := vm.RunString(`
		var bare = {};
		var wrongShape = { _events: 42 };
		var absent = { _events: {} };
	`)
	require.NoError(t, err)

	var diag bytes.Buffer
	for _, name := range []string{"bare", "wrongShape", "absent"} {
		em, err := adapter.Emitter(vm.Get(name).ToObject(vm), emitsource.WithEmitterDiagnostics(&diag))
		require.NoError(t, err)
		assert.False(t, em.Emit("x"), name)
	}
	assert.Zero(t, diag.Len())
}

func TestAdapter_EmitListenerThrows(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)

	_, err := vm.RunString(`
		var calls = [];
		var obj = {
			_events: {
				x: [
					function () { calls.push("f"); },
					function () { calls.push("g"); throw new Error("boom"); },
					function () { calls.push("h"); }
				]
			}
		};
	`)
	require.NoError(t, err)

	var diag bytes.Buffer
	em, err := adapter.Emitter(vm.Get("obj").ToObject(vm), emitsource.WithEmitterDiagnostics(&diag))
	require.NoError(t, err)

	assert.False(t, em.Emit("x"))
	assert.Equal(t, []any{"f", "g"}, vm.Get("calls").Export(),
		"listeners after the throwing one must be abandoned")
	assert.Contains(t, diag.String(), "Uncaught")
	assert.Contains(t, diag.String(), "boom")
}

func TestAdapter_MakeCallback_DrainsTickQueue(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)

	_, err := vm.RunString(`
		var ticks = 0;
		var process = { _tickCallback: function () { ticks++; } };
		var req = { callback: function (a) { return a + 40; } };
	`)
	require.NoError(t, err)

	src, err := adapter.Source(vm.Get("req").ToObject(vm))
	require.NoError(t, err)

	src.Active()
	ret, err := src.MakeCallback(2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ret)
	assert.Equal(t, int64(1), vm.Get("ticks").Export(),
		"deferred-work drain should run exactly once per callback")
	assert.Nil(t, adapter.Tracker().Current())

	// Drain resolution is one-time; further invocations reuse it.
	_, err = src.MakeCallback(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), vm.Get("ticks").Export())

	src.Inactive()
}

func TestAdapter_MakeCallback_NonCallable(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)

	_, err := vm.RunString(`var req = { callback: 7 };`)
	require.NoError(t, err)

	src, err := adapter.Source(vm.Get("req").ToObject(vm))
	require.NoError(t, err)

	ret, err := src.MakeCallback()
	require.NoError(t, err)
	assert.Nil(t, ret)
}

func TestAdapter_MissingTickCallbackAborts(t *testing.T) {
	adapter, vm, diag, _ := newTestAdapter(t)

	_, err := vm.RunString(`var req = { callback: function () { return 1; } };`)
	require.NoError(t, err)

	src, err := adapter.Source(vm.Get("req").ToObject(vm))
	require.NoError(t, err)

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected abort without process._tickCallback")
		err, ok := r.(error)
		require.True(t, ok)
		var drainErr *emitsource.DrainResolutionError
		assert.True(t, errors.As(err, &drainErr))
		assert.Contains(t, diag.String(), ". Bad.")
	}()
	_, _ = src.MakeCallback()
}

func TestAdapter_CaptureStackFromScript(t *testing.T) {
	adapter, vm, diag, _ := newTestAdapter(t)

	var src *emitsource.AsyncSource
	require.NoError(t, vm.Set("activate", func() {
		obj := vm.NewObject()
		var err error
		src, err = adapter.Source(obj)
		require.NoError(t, err)
		src.Active()
	}))

	_, err := vm.RunScript("schedule.js", `
		function schedule() { activate(); }
		schedule();
	`)
	require.NoError(t, err)
	require.NotNil(t, src)

	src.PrintStack()
	out := diag.String()
	assert.Contains(t, out, "    ---------------------------")
	assert.Contains(t, out, "schedule")
	assert.Contains(t, out, "schedule.js:")
}

// A callback that throws inside a nested source prints the source's own
// stack section followed by its scheduler's.
func TestAdapter_ThrowingCallbackPrintsAncestorChain(t *testing.T) {
	adapter, vm, diag, fatals := newTestAdapter(t)

	_, err := vm.RunString(`
		var process = { _tickCallback: function () {} };
		function innerThrow() { throw new Error("deep boom"); }
	`)
	require.NoError(t, err)

	require.NoError(t, vm.Set("nest", func() {
		obj := vm.NewObject()
		require.NoError(t, obj.Set("callback", vm.Get("innerThrow")))
		inner, err := adapter.Source(obj)
		require.NoError(t, err)
		inner.Active()
		_, err = inner.MakeCallback()
		assert.Error(t, err)
	}))

	_, err = vm.RunScript("outer.js", `
		var outerObj = { callback: function () { nest(); } };
		function scheduleOuter() { outerActivate(); }
	`)
	require.NoError(t, err)

	outer, err := adapter.Source(vm.Get("outerObj").ToObject(vm))
	require.NoError(t, err)
	require.NoError(t, vm.Set("outerActivate", func() { outer.Active() }))
	_, err = vm.RunScript("outer2.js", `scheduleOuter();`)
	require.NoError(t, err)

	_, err = outer.MakeCallback()
	require.NoError(t, err, "the outer callback itself succeeds")

	require.Len(t, *fatals, 1)
	assert.ErrorContains(t, (*fatals)[0], "deep boom")

	out := diag.String()
	assert.Contains(t, out, "Uncaught")
	assert.Contains(t, out, "deep boom")
	assert.GreaterOrEqual(t, strings.Count(out, "    ---------------------------"), 2,
		"expected the inner stack section plus at least its scheduler's")
}

func TestAdapter_Bind_EventEmitter(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)

	var diag bytes.Buffer
	require.NoError(t, adapter.Bind(emitsource.WithEmitterDiagnostics(&diag)))

	ret, err := vm.RunString(`
		var got = [];
		var e = new EventEmitter();
		e._events = {
			ping: [function (v) { got.push([v, this === e]); }]
		};
		e.emit("ping", 7);
	`)
	require.NoError(t, err)
	assert.True(t, ret.ToBoolean())
	assert.Equal(t, []any{[]any{int64(7), true}}, vm.Get("got").Export())

	ret, err = vm.RunString(`e.emit("unknown");`)
	require.NoError(t, err)
	assert.False(t, ret.ToBoolean())
	assert.Zero(t, diag.Len())
}

// Arguments forwarded through emit keep their identity: listeners
// observe the very same array and function objects the caller passed,
// and mutations of them are visible to the caller.
func TestAdapter_EmitArgumentIdentity(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)
	require.NoError(t, adapter.Bind())

	ret, err := vm.RunString(`
		var arr = [1, 2];
		var fn = function () {};
		var same = false;
		var e = new EventEmitter();
		e._events = {
			x: function (a, f) {
				same = (a === arr) && (f === fn);
				a.push(3);
			}
		};
		e.emit("x", arr, fn) && same && arr.length === 3;
	`)
	require.NoError(t, err)
	assert.True(t, ret.ToBoolean())
}

func TestAdapter_Emitter_NilObject(t *testing.T) {
	adapter, _, _, _ := newTestAdapter(t)
	_, err := adapter.Emitter(nil)
	require.Error(t, err)
	_, err = adapter.Source(nil)
	require.Error(t, err)
}

// Snapshot semantics hold for script-mutated registries: a listener that
// empties the live array mid-emission does not stop listeners captured
// in the snapshot.
func TestAdapter_EmitSnapshotIsolation(t *testing.T) {
	adapter, vm, _, _ := newTestAdapter(t)

	_, err := vm.RunString(`
		var calls = [];
		var obj = {};
		obj._events = {
			x: [
				function () { calls.push("f"); obj._events.x.length = 0; },
				function () { calls.push("g"); }
			]
		};
	`)
	require.NoError(t, err)

	em, err := adapter.Emitter(vm.Get("obj").ToObject(vm))
	require.NoError(t, err)

	assert.True(t, em.Emit("x"))
	assert.Equal(t, []any{"f", "g"}, vm.Get("calls").Export())
}
