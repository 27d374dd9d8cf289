// Package segment turns a continuous audio stream into utterance segments and
// feeds each one through the pipeline.
package segment

import (
	"fmt"
)

// State is the conversation loop's state.
type State int32

const (
	// StateIdle - constructed or reset, no audio consumed.
	StateIdle State = iota
	// StateListening - reading frames, waiting for speech onset.
	StateListening
	// StateSpeechDetected - buffering frames of an utterance.
	StateSpeechDetected
	// StateTrailingSilence - silence ran long enough; the segment is being finalized.
	StateTrailingSilence
	// StateStopped - terminal until Reset. Frames are discarded.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateSpeechDetected:
		return "SPEECH_DETECTED"
	case StateTrailingSilence:
		return "TRAILING_SILENCE"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for STOPPED.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// Transitions:
//
//	IDLE → LISTENING → SPEECH_DETECTED → TRAILING_SILENCE → (emit) → LISTENING
//	                          │
//	                          └── max duration ──→ (emit) → LISTENING
//	any ── Stop() ──→ STOPPED ── Reset() ──→ IDLE
func validTransition(from, to State) bool {
	switch to {
	case StateStopped:
		return true
	case StateListening:
		return from == StateIdle || from == StateSpeechDetected || from == StateTrailingSilence
	case StateSpeechDetected:
		return from == StateListening
	case StateTrailingSilence:
		return from == StateSpeechDetected
	case StateIdle:
		return from == StateStopped
	}
	return false
}
