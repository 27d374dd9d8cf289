package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"transport", &TransportError{Op: "stt", StatusCode: 503}, KindTransport},
		{"wrapped transport", fmt.Errorf("stage: %w", &TransportError{Op: "tts", Err: errors.New("refused")}), KindTransport},
		{"exhausted", fmt.Errorf("stt: %w: %w", ErrRetriesExhausted, &TransportError{Op: "stt", StatusCode: 500}), KindTransport},
		{"rejected", &RejectedRequestError{Op: "stt", StatusCode: 404}, KindRejected},
		{"capability", Capability("tts", "unsupported voice", nil), KindCapability},
		{"state", &StateError{State: "STOPPED", Action: "emit segment"}, KindState},
		{"canceled", fmt.Errorf("x: %w", context.Canceled), KindCanceled},
		{"deadline", context.DeadlineExceeded, KindTransport},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&TransportError{Op: "x", StatusCode: 502}) {
		t.Error("expected 5xx transport error to be retryable")
	}
	if IsRetryable(&RejectedRequestError{Op: "x", StatusCode: 400}) {
		t.Error("expected rejected request not to be retryable")
	}
	if IsRetryable(&TransportError{Op: "x", Err: context.Canceled}) {
		t.Error("expected caller cancellation not to be retryable")
	}
	if IsRetryable(nil) {
		t.Error("expected nil not to be retryable")
	}
}

func TestErrorMessages(t *testing.T) {
	err := &RejectedRequestError{Op: "tts.synthesize", StatusCode: 422, Body: "bad voice"}
	if err.Error() != "tts.synthesize: request rejected: status 422: bad voice" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	se := &StateError{State: "STOPPED", Action: "emit segment"}
	if se.Error() != "invalid transition: cannot emit segment in state STOPPED" {
		t.Errorf("unexpected message: %s", se.Error())
	}

	inner := errors.New("no such device")
	ce := Capability("playback", "device unavailable", inner)
	if !errors.Is(ce, inner) {
		t.Error("expected capability error to unwrap to its cause")
	}
}
