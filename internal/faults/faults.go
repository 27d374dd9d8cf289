// Package faults defines the runtime's error taxonomy.
//
// Remote adapters absorb TransportError up to their retry ceiling. Every other
// kind propagates unchanged to the calling stage, which turns it into a
// pipeline.failed event.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// ErrRetriesExhausted is wrapped into the terminal error of a remote call that
// ran out of attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Failure kinds reported by Kind.
const (
	KindTransport  = "transport"
	KindRejected   = "rejected"
	KindCapability = "capability"
	KindState      = "state"
	KindCanceled   = "canceled"
	KindInternal   = "internal"
)

// TransportError is a network failure, timeout, or server-side 5xx status.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport error: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedRequestError is a client-side 4xx status. Retrying cannot change it.
type RejectedRequestError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedRequestError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: request rejected: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: request rejected: status %d", e.Op, e.StatusCode)
}

// CapabilityError is an adapter-local failure such as an unsupported voice,
// malformed audio, or an unavailable device.
type CapabilityError struct {
	Capability string
	Reason     string
	Err        error
}

func (e *CapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Capability, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Capability, e.Reason)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// StateError is an invalid state-machine transition.
type StateError struct {
	State  string
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s in state %s", e.Action, e.State)
}

// Capability builds a CapabilityError.
func Capability(capability, reason string, err error) error {
	return &CapabilityError{Capability: capability, Reason: reason, Err: err}
}

// IsRetryable reports whether err is a TransportError that is not the result
// of the caller cancelling.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransportError
	return errors.As(err, &te)
}

// Kind classifies err for metrics and failure events.
func Kind(err error) string {
	var (
		te *TransportError
		re *RejectedRequestError
		ce *CapabilityError
		se *StateError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &re):
		return KindRejected
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &ce):
		return KindCapability
	case errors.As(err, &se):
		return KindState
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	default:
		return KindInternal
	}
}
