package emitsource

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrNoDrain is returned (via DrainResolutionError) when a Tracker has
	// neither a drain callable nor a drain resolver configured and a
	// successful callback invocation requires one.
	ErrNoDrain = errors.New("emitsource: no deferred-work drain configured")

	// errNilHost is returned by constructors given a nil host object.
	errNilHost = errors.New("emitsource: host object cannot be nil")
)

// PanicError wraps a value recovered from a panicking callback.
//
// Callbacks signal uncaught errors by returning a non-nil error; a panic
// is folded into the same path so the caller observes a single failure
// mode.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("emitsource: callback panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error
// type. This enables use with [errors.Is] and [errors.As] through the
// cause chain. If the panic Value is not an error, returns nil.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// CallbackError reports an uncaught error raised by an invoked listener
// or async callback. It is the error kind delivered to a Tracker's fatal
// policy, and the error returned by [AsyncSource.MakeCallback] when the
// policy elects not to terminate.
type CallbackError struct {
	// Cause is the error the callable raised.
	Cause error

	// Source is the AsyncSource whose invocation raised the error.
	Source *AsyncSource
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	return "emitsource: uncaught error in callback: " + e.Cause.Error()
}

// Unwrap returns the underlying cause for use with [errors.Is] and
// [errors.As].
func (e *CallbackError) Unwrap() error {
	return e.Cause
}

// DrainResolutionError reports that the deferred-work drain callable
// could not be resolved. The surrounding runtime is assumed to always
// provide the drain, so this is a configuration invariant violation: the
// Tracker panics with this error rather than returning it.
type DrainResolutionError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *DrainResolutionError) Error() string {
	if e.Message == "" {
		return "emitsource: deferred-work drain resolution failed"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and
// [errors.As].
func (e *DrainResolutionError) Unwrap() error {
	return e.Cause
}
