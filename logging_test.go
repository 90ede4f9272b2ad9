package emitsource

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/joeycumines/stumpy"
)

func newTestLogger(buf *bytes.Buffer) Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(buf),
			stumpy.WithTimeField(``),
		),
	).Logger()
}

func TestEmitter_UncaughtErrorLogged(t *testing.T) {
	var logBuf bytes.Buffer

	host := MapObject{eventsProperty: MapObject{"x": Callback(
		func(Value, ...Value) (Value, error) {
			return nil, errors.New("boom")
		},
	)}}
	e, err := NewEmitter(host,
		WithEmitterDiagnostics(io.Discard),
		WithEmitterLogger(newTestLogger(&logBuf)),
	)
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}

	if e.Emit("x") {
		t.Error("Emit should return false")
	}

	out := logBuf.String()
	if !strings.Contains(out, `"err":"boom"`) {
		t.Errorf("expected error field in log output, got %q", out)
	}
	if !strings.Contains(out, `"event":"x"`) {
		t.Errorf("expected event field in log output, got %q", out)
	}
	if !strings.Contains(out, "uncaught error in callback") {
		t.Errorf("expected log message, got %q", out)
	}
}

func TestAsyncSource_UncaughtErrorLogged(t *testing.T) {
	var logBuf bytes.Buffer

	tracker, err := NewTracker(
		WithDiagnostics(io.Discard),
		WithLogger(newTestLogger(&logBuf)),
		WithFatalPolicy(noopPolicy),
		WithDrain(func(Value, ...Value) (Value, error) { return nil, nil }, nil),
	)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	host := MapObject{callbackProperty: Callback(func(Value, ...Value) (Value, error) {
		return nil, errors.New("async boom")
	})}
	src, _ := tracker.NewSource(host)
	if _, err := src.MakeCallback(); err == nil {
		t.Fatal("expected callback error")
	}

	out := logBuf.String()
	if !strings.Contains(out, `"err":"async boom"`) {
		t.Errorf("expected error field in log output, got %q", out)
	}
}

// A nil logger disables structured logging without affecting the raw
// diagnostic stream.
func TestUncaughtErrorWithoutLogger(t *testing.T) {
	var diag bytes.Buffer
	host := MapObject{eventsProperty: MapObject{"x": Callback(
		func(Value, ...Value) (Value, error) {
			return nil, errors.New("boom")
		},
	)}}
	e, err := NewEmitter(host, WithEmitterDiagnostics(&diag))
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}
	if e.Emit("x") {
		t.Error("Emit should return false")
	}
	if !strings.Contains(diag.String(), "Uncaught boom") {
		t.Errorf("expected diagnostic output, got %q", diag.String())
	}
}
