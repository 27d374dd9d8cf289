package stt

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/service/stage"
)

const stageName = "stt"

// Stage subscribes to audio.recorded and publishes stt.transcript.
type Stage struct {
	transcriber Transcriber
	bus         *bus.Bus
	modelSize   string
	logger      zerolog.Logger
}

// NewStage creates the transcription stage.
func NewStage(t Transcriber, b *bus.Bus, modelSize string) *Stage {
	return &Stage{
		transcriber: t,
		bus:         b,
		modelSize:   modelSize,
		logger:      logging.WithComponent("stage.stt"),
	}
}

// Attach subscribes the stage to the bus.
func (s *Stage) Attach() error {
	return s.bus.Subscribe(models.TopicAudioRecorded, s.handle, bus.WithName(stageName))
}

func (s *Stage) handle(ctx context.Context, ev models.Event) error {
	rec, err := models.PayloadAs[models.AudioRecorded](ev)
	if err != nil {
		return stage.Fail(ctx, s.bus, ev, stageName, err)
	}

	stage.UX(ctx, s.bus, ev, models.UXThinking)
	start := time.Now()

	tr, err := s.transcriber.Transcribe(ctx, Request{
		Samples:    rec.Samples,
		SampleRate: rec.SampleRate,
		ModelSize:  s.modelSize,
	})
	if err != nil {
		return stage.Fail(ctx, s.bus, ev, stageName, err)
	}
	stage.Observe(stageName, start)

	tr.Text = strings.TrimSpace(tr.Text)
	if tr.Text == "" {
		s.logger.Info().Str("corrId", ev.CorrID).Msg("Empty transcript, nothing to do")
		stage.UX(ctx, s.bus, ev, models.UXListening)
		return nil
	}

	s.logger.Info().
		Str("corrId", ev.CorrID).
		Str("text", tr.Text).
		Dur("latency", time.Since(start)).
		Msg("Transcribed")

	return s.bus.Publish(ctx, models.Derive(ev, models.TopicTranscript, tr))
}
