// Package tts defines the synthesis capability and its Local and Remote
// variants.
package tts

import (
	"context"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/service/audio"
)

// Synthesizer turns text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (models.SynthesizedAudio, error)
}

// Engine is a synthesis backend run by Local (Polly, tone).
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) (models.SynthesizedAudio, error)
}

// FromWAV describes an encoded WAV clip. Non-WAV payloads are passed through
// with their content type and no duration.
func FromWAV(data []byte, contentType string) (models.SynthesizedAudio, error) {
	if len(data) == 0 {
		return models.SynthesizedAudio{}, faults.Capability("tts", "empty audio", nil)
	}
	if contentType == "" {
		contentType = audio.ContentTypeWAV
	}
	out := models.SynthesizedAudio{Audio: data, ContentType: contentType}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return out, nil
	}
	out.ContentType = audio.ContentTypeWAV
	out.SampleRate = rate
	out.DurationMs = audio.SamplesDuration(len(samples), rate).Milliseconds()
	return out, nil
}
