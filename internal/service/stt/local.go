package stt

import (
	"context"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/worker"
)

// Local runs an Engine in-process inside the bounded worker pool.
type Local struct {
	engine    Engine
	pool      *worker.Pool
	modelSize string
}

// NewLocal creates a Local transcriber. modelSize is used when a request
// carries no hint.
func NewLocal(engine Engine, pool *worker.Pool, modelSize string) *Local {
	return &Local{engine: engine, pool: pool, modelSize: modelSize}
}

// Transcribe implements Transcriber.
func (l *Local) Transcribe(ctx context.Context, req Request) (models.Transcript, error) {
	if err := validate(req); err != nil {
		return models.Transcript{}, err
	}
	if req.ModelSize == "" {
		req.ModelSize = l.modelSize
	}
	return worker.Do(ctx, l.pool, func(ctx context.Context) (models.Transcript, error) {
		return l.engine.Recognize(ctx, req)
	})
}

func validate(req Request) error {
	if len(req.Samples) == 0 {
		return faults.Capability("stt", "malformed audio: no samples", nil)
	}
	if req.SampleRate <= 0 {
		return faults.Capability("stt", "malformed audio: missing sample rate", nil)
	}
	return nil
}
