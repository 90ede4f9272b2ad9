package emitsource

import (
	"fmt"
	"io"

	"github.com/joeycumines/logiface"
)

// Logger is the structured logger accepted by [WithLogger] and
// [WithEmitterLogger]. A nil Logger disables structured logging; the raw
// diagnostic stream is written regardless. Obtain one from any logiface
// backend, e.g. stumpy.L.New(...).Logger().
type Logger = *logiface.Logger[logiface.Event]

// errDetail prefers the error's own formatting when it carries more than
// Error() exposes, e.g. a JavaScript exception whose String() includes
// the script stack trace.
func errDetail(err error) string {
	if s, ok := err.(fmt.Stringer); ok {
		return s.String()
	}
	return err.Error()
}

// reportUncaught surfaces an uncaught callback error on the diagnostic
// stream and, when configured, the structured log. event is the event
// name for listener errors, empty for async callback errors.
func reportUncaught(w io.Writer, log Logger, event string, err error) {
	fmt.Fprintf(w, "Uncaught %s\n", errDetail(err))
	b := log.Err().Err(err)
	if event != "" {
		b = b.Str("event", event)
	}
	b.Log("uncaught error in callback")
}
