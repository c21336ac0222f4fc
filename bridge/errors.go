package bridge

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure. The classes propagate unchanged to
// the immediate caller; none are retried or recovered inside the bridge.
type Kind string

const (
	// KindEncoding: the request payload was not serializable. Programmer
	// error, not expected in normal operation.
	KindEncoding Kind = "encoding"
	// KindIO: pipe write or read failure, including worker exit/crash.
	KindIO Kind = "io"
	// KindProtocol: the response line was not valid, well-shaped JSON —
	// a worker bug or a desynchronized stream.
	KindProtocol Kind = "protocol"
	// KindApplication: the worker explicitly reported success=false.
	KindApplication Kind = "application"
	// KindInitialization: the worker process failed to spawn.
	KindInitialization Kind = "initialization"
)

// Error is the one error type crossing the bridge boundary. The rendered
// string is what the UI ultimately presents; for application errors it is
// the worker's own message verbatim, with no structured code attached.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure class from err, or "" when err did not come
// from the bridge.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
