package tracing

import (
	"errors"
	"fmt"
)

// ErrNoActiveRequest is returned when the ambient resolver is called outside
// the scope of an intercepted request.
var ErrNoActiveRequest = errors.New("no active request bound to context")

// TraceSetupError reports a failure while resolving or publishing a trace ID.
// Interceptors log it and continue serving the request.
type TraceSetupError struct {
	Op  string
	Err error
}

func (e *TraceSetupError) Error() string {
	return fmt.Sprintf("trace setup failed during %s: %v", e.Op, e.Err)
}

func (e *TraceSetupError) Unwrap() error {
	return e.Err
}
