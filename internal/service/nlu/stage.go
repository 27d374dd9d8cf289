package nlu

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

const stageName = "nlu"

// Stage subscribes to stt.transcript and publishes nlu.intent.
type Stage struct {
	classifier Classifier
	bus        *bus.Bus
	logger     zerolog.Logger
}

// NewStage creates the classification stage.
func NewStage(c Classifier, b *bus.Bus) *Stage {
	return &Stage{
		classifier: c,
		bus:        b,
		logger:     logging.WithComponent("stage.nlu"),
	}
}

// Attach subscribes the stage to the bus.
func (s *Stage) Attach() error {
	return s.bus.Subscribe(models.TopicTranscript, s.handle, bus.WithName(stageName))
}

func (s *Stage) handle(ctx context.Context, ev models.Event) error {
	tr, err := models.PayloadAs[models.Transcript](ev)
	if err != nil {
		return stage.Fail(ctx, s.bus, ev, stageName, err)
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return nil
	}

	start := time.Now()
	intent, err := s.classifier.Classify(ctx, text)
	if err != nil {
		return stage.Fail(ctx, s.bus, ev, stageName, err)
	}
	stage.Observe(stageName, start)

	s.logger.Info().
		Str("corrId", ev.CorrID).
		Str("intent", intent.Name).
		Float64("confidence", intent.Confidence).
		Msg("Classified")

	return s.bus.Publish(ctx, models.Derive(ev, models.TopicIntent, intent))
}
