package bus

import (
	"fmt"
	"strings"
)

// HandlerFailure is one subscriber's error from a publish call.
type HandlerFailure struct {
	Handler string
	Err     error
}

// PublishError aggregates every handler failure of a single publish call.
type PublishError struct {
	Topic    string
	CorrID   string
	Failures []HandlerFailure
}

func (e *PublishError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Handler, f.Err))
	}
	return fmt.Sprintf("publish %s: %d handler(s) failed: %s", e.Topic, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes each handler error to errors.Is and errors.As.
func (e *PublishError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Failed returns the names of the handlers that failed.
func (e *PublishError) Failed() []string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Handler)
	}
	return names
}
