// Package tone synthesizes a deterministic hummed tone in place of speech.
// It needs no model or network access and is the default engine.
package tone

import (
	"context"
	"math"
	"time"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/service/audio"
)

const (
	perChar     = 60 * time.Millisecond
	minDuration = 300 * time.Millisecond
	maxDuration = 10 * time.Second
	amplitude   = 8000
	syllableHz  = 4.0
)

// Voices maps the supported voice names to a base pitch in Hz. The empty name
// selects "default".
var Voices = map[string]float64{
	"default": 220,
	"low":     110,
	"high":    440,
}

// Engine implements tts.Engine.
type Engine struct {
	sampleRate int
}

// New creates an engine producing clips at sampleRate (16kHz when <= 0).
func New(sampleRate int) *Engine {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Engine{sampleRate: sampleRate}
}

// Name implements tts.Engine.
func (e *Engine) Name() string { return "tone" }

// Synthesize implements tts.Engine. The clip length follows the text length
// and its loudness pulses at syllable rate so mouth animation has something
// to follow.
func (e *Engine) Synthesize(ctx context.Context, text, voice string) (models.SynthesizedAudio, error) {
	if voice == "" {
		voice = "default"
	}
	pitch, ok := Voices[voice]
	if !ok {
		return models.SynthesizedAudio{}, faults.Capability("tts.tone", "unsupported voice "+voice, nil)
	}

	d := min(max(time.Duration(len([]rune(text)))*perChar, minDuration), maxDuration)
	n := int(int64(d) * int64(e.sampleRate) / int64(time.Second))
	samples := make([]int16, n)
	for i := range samples {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return models.SynthesizedAudio{}, err
			}
		}
		t := float64(i) / float64(e.sampleRate)
		gain := math.Abs(math.Sin(math.Pi * syllableHz * t))
		samples[i] = int16(amplitude * gain * math.Sin(2*math.Pi*pitch*t))
	}

	return models.SynthesizedAudio{
		Audio:       audio.EncodeWAV(samples, e.sampleRate),
		ContentType: audio.ContentTypeWAV,
		SampleRate:  e.sampleRate,
		DurationMs:  d.Milliseconds(),
	}, nil
}
