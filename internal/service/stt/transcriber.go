// Package stt defines the transcription capability and its Local and Remote
// variants.
package stt

import (
	"context"

	"fish-assistant/internal/models"
)

// Request is one utterance to transcribe.
type Request struct {
	Samples    []int16 // mono PCM16
	SampleRate int
	ModelSize  string // hint; engines may ignore it
}

// Transcriber turns audio into text. Local and Remote implement it
// identically; callers cannot tell them apart except by latency and failure
// modes.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (models.Transcript, error)
}

// Engine is a recognition backend run by Local (Google Speech, Whisper, mock).
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request) (models.Transcript, error)
}
