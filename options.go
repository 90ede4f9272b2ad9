package emitsource

import (
	"errors"
	"io"
	"os"
)

const (
	// DefaultFrameLimit bounds the depth of a captured stack trace.
	DefaultFrameLimit = 10

	// DefaultAncestorLimit bounds how many ancestor stack sections
	// PrintStack emits beyond the current source's own.
	DefaultAncestorLimit = 4
)

// trackerOptions holds configuration options for Tracker creation.
type trackerOptions struct {
	capture       Capturer
	frameLimit    int
	ancestorLimit int
	drain         Callback
	drainRecv     Value
	drainResolver DrainResolver
	diagnostics   io.Writer
	logger        Logger
	fatal         FatalPolicy
}

// --- Tracker Options ---

// TrackerOption configures a Tracker instance.
type TrackerOption interface {
	applyTracker(*trackerOptions) error
}

// trackerOptionImpl implements TrackerOption.
type trackerOptionImpl struct {
	applyTrackerFunc func(*trackerOptions) error
}

func (o *trackerOptionImpl) applyTracker(opts *trackerOptions) error {
	return o.applyTrackerFunc(opts)
}

// WithCapturer sets the stack capturer used when a source becomes
// active. The default captures Go frames via runtime.Callers.
func WithCapturer(capture Capturer) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		if capture == nil {
			return errors.New("emitsource: capturer cannot be nil")
		}
		opts.capture = capture
		return nil
	}}
}

// WithFrameLimit bounds the depth of captured stack traces.
// Must be positive.
func WithFrameLimit(limit int) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		if limit <= 0 {
			return errors.New("emitsource: frame limit must be positive")
		}
		opts.frameLimit = limit
		return nil
	}}
}

// WithAncestorLimit bounds how many ancestor stack sections PrintStack
// emits beyond the current source's own. Must not be negative.
func WithAncestorLimit(limit int) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		if limit < 0 {
			return errors.New("emitsource: ancestor limit cannot be negative")
		}
		opts.ancestorLimit = limit
		return nil
	}}
}

// WithDrain sets the deferred-work drain invoked once after each
// successful top-level callback, with recv as its receiver context.
// Mutually exclusive with WithDrainResolver.
func WithDrain(drain Callback, recv Value) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		if drain == nil {
			return errors.New("emitsource: drain cannot be nil")
		}
		opts.drain = drain
		opts.drainRecv = recv
		return nil
	}}
}

// WithDrainResolver defers drain lookup until first use: the resolver
// runs exactly once, on the first successful callback invocation.
// Resolution failure is a configuration invariant violation; the Tracker
// panics with a [DrainResolutionError].
func WithDrainResolver(resolver DrainResolver) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		if resolver == nil {
			return errors.New("emitsource: drain resolver cannot be nil")
		}
		opts.drainResolver = resolver
		return nil
	}}
}

// WithDiagnostics sets the diagnostic stream used for uncaught-error
// reports and ancestor stack output. Defaults to os.Stderr.
func WithDiagnostics(w io.Writer) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		if w == nil {
			return errors.New("emitsource: diagnostics writer cannot be nil")
		}
		opts.diagnostics = w
		return nil
	}}
}

// WithLogger attaches a structured logger for uncaught-error events.
// A nil logger is accepted and disables structured logging.
func WithLogger(logger Logger) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithFatalPolicy substitutes the action taken after an uncaught
// callback error has been reported and its ancestor chain printed. The
// default terminates the process with exit status 1. A substituted
// policy that returns causes MakeCallback to return the
// [*CallbackError] to its caller instead.
func WithFatalPolicy(policy FatalPolicy) TrackerOption {
	return &trackerOptionImpl{func(opts *trackerOptions) error {
		if policy == nil {
			return errors.New("emitsource: fatal policy cannot be nil")
		}
		opts.fatal = policy
		return nil
	}}
}

// resolveTrackerOptions applies TrackerOption instances to trackerOptions.
func resolveTrackerOptions(opts []TrackerOption) (*trackerOptions, error) {
	cfg := &trackerOptions{
		capture:       captureGoFrames,
		frameLimit:    DefaultFrameLimit,
		ancestorLimit: DefaultAncestorLimit,
		diagnostics:   os.Stderr,
		fatal:         exitPolicy,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyTracker(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.drain != nil && cfg.drainResolver != nil {
		return nil, errors.New("emitsource: drain and drain resolver are mutually exclusive")
	}
	return cfg, nil
}

// emitterOptions holds configuration options for Emitter creation.
type emitterOptions struct {
	diagnostics io.Writer
	logger      Logger
}

// --- Emitter Options ---

// EmitterOption configures an Emitter instance.
type EmitterOption interface {
	applyEmitter(*emitterOptions) error
}

// emitterOptionImpl implements EmitterOption.
type emitterOptionImpl struct {
	applyEmitterFunc func(*emitterOptions) error
}

func (o *emitterOptionImpl) applyEmitter(opts *emitterOptions) error {
	return o.applyEmitterFunc(opts)
}

// WithEmitterDiagnostics sets the diagnostic stream for listener error
// reports. Defaults to os.Stderr.
func WithEmitterDiagnostics(w io.Writer) EmitterOption {
	return &emitterOptionImpl{func(opts *emitterOptions) error {
		if w == nil {
			return errors.New("emitsource: diagnostics writer cannot be nil")
		}
		opts.diagnostics = w
		return nil
	}}
}

// WithEmitterLogger attaches a structured logger for listener error
// events. A nil logger is accepted and disables structured logging.
func WithEmitterLogger(logger Logger) EmitterOption {
	return &emitterOptionImpl{func(opts *emitterOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveEmitterOptions applies EmitterOption instances to emitterOptions.
func resolveEmitterOptions(opts []EmitterOption) (*emitterOptions, error) {
	cfg := &emitterOptions{
		diagnostics: os.Stderr,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyEmitter(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
