package tts

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

const stageName = "tts"

// Stage subscribes to tts.request and publishes tts.audio.
type Stage struct {
	synth  Synthesizer
	bus    *bus.Bus
	logger zerolog.Logger
}

// NewStage creates the synthesis stage.
func NewStage(s Synthesizer, b *bus.Bus) *Stage {
	return &Stage{
		synth:  s,
		bus:    b,
		logger: logging.WithComponent("stage.tts"),
	}
}

// Attach subscribes the stage to the bus.
func (s *Stage) Attach() error {
	return s.bus.Subscribe(models.TopicTTSRequest, s.handle, bus.WithName(stageName))
}

func (s *Stage) handle(ctx context.Context, ev models.Event) error {
	req, err := models.PayloadAs[models.TTSRequest](ev)
	if err != nil {
		return stage.Fail(ctx, s.bus, ev, stageName, err)
	}

	// Skills may answer with nothing to say.
	if strings.TrimSpace(req.Text) == "" {
		s.logger.Debug().Str("corrId", ev.CorrID).Msg("Empty utterance, skipping synthesis")
		stage.UX(ctx, s.bus, ev, models.UXIdle)
		return nil
	}

	start := time.Now()
	clip, err := s.synth.Synthesize(ctx, req.Text, req.Voice)
	if err != nil {
		return stage.Fail(ctx, s.bus, ev, stageName, err)
	}
	stage.Observe(stageName, start)

	s.logger.Info().
		Str("corrId", ev.CorrID).
		Int64("durationMs", clip.DurationMs).
		Int("bytes", len(clip.Audio)).
		Dur("latency", time.Since(start)).
		Msg("Synthesized")

	return s.bus.Publish(ctx, models.Derive(ev, models.TopicTTSAudio, clip))
}
