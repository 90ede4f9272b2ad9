package emitsource

import (
	"fmt"
	"io"
	"runtime"
)

// Frame is one entry of a captured execution stack, most-recent-first.
type Frame struct {
	// Function is the name of the executing function, empty if unknown.
	Function string

	// Source is the name of the source file or script.
	Source string

	// Line is the 1-based line number, 0 if unknown.
	Line int

	// Column is the 1-based column number, 0 if unavailable (the Go
	// runtime does not track columns; the goja adapter does).
	Column int
}

// Capturer produces a snapshot of the current execution stack, bounded
// by limit frames. The default captures Go frames via [runtime.Callers];
// adapters substitute their own (e.g. the goja adapter captures the
// JavaScript stack).
type Capturer func(limit int) []Frame

// stackSeparator precedes each stack section in diagnostic output.
const stackSeparator = "    ---------------------------"

// captureGoFrames is the default Capturer.
func captureGoFrames(limit int) []Frame {
	pcs := make([]uintptr, limit)
	// Skip runtime.Callers and this function; the capture site's own
	// frames remain visible.
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)
	for {
		fr, more := frames.Next()
		out = append(out, Frame{
			Function: fr.Function,
			Source:   fr.File,
			Line:     fr.Line,
		})
		if !more {
			break
		}
	}
	return out
}

// writeStackSection writes one separator-prefixed stack section:
//
//	    ---------------------------
//	    at doWork (app.js:10:5)
func writeStackSection(w io.Writer, frames []Frame) {
	fmt.Fprintln(w, stackSeparator)
	for _, fr := range frames {
		fmt.Fprintf(w, "    at %s (%s:%d:%d)\n", fr.Function, fr.Source, fr.Line, fr.Column)
	}
}
