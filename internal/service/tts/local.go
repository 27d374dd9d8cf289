package tts

import (
	"context"
	"strings"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/worker"
)

// Local runs an Engine in-process inside the bounded worker pool.
type Local struct {
	engine Engine
	pool   *worker.Pool
	voice  string
}

// NewLocal creates a Local synthesizer. voice is used when a request carries
// no hint.
func NewLocal(engine Engine, pool *worker.Pool, voice string) *Local {
	return &Local{engine: engine, pool: pool, voice: voice}
}

// Synthesize implements Synthesizer.
func (l *Local) Synthesize(ctx context.Context, text, voice string) (models.SynthesizedAudio, error) {
	if strings.TrimSpace(text) == "" {
		return models.SynthesizedAudio{}, faults.Capability("tts", "empty text", nil)
	}
	if voice == "" {
		voice = l.voice
	}
	return worker.Do(ctx, l.pool, func(ctx context.Context) (models.SynthesizedAudio, error) {
		return l.engine.Synthesize(ctx, text, voice)
	})
}
