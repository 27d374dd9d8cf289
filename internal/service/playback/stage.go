package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/stage"
)

const stageName = "playback"

// Stage subscribes to tts.audio. It publishes audio.playback.start before
// returning and hands the playback itself to the bus supervisor, which
// publishes audio.playback.end when the clip is done.
type Stage struct {
	player Player
	bus    *bus.Bus
	logger zerolog.Logger
}

// NewStage creates the playback stage.
func NewStage(p Player, b *bus.Bus) *Stage {
	return &Stage{
		player: p,
		bus:    b,
		logger: logging.WithComponent("stage.playback"),
	}
}

// Attach subscribes the stage to the bus.
func (s *Stage) Attach() error {
	return s.bus.Subscribe(models.TopicTTSAudio, s.handle, bus.WithName(stageName))
}

func (s *Stage) handle(ctx context.Context, ev models.Event) error {
	clip, err := models.PayloadAs[models.SynthesizedAudio](ev)
	if err != nil {
		return stage.Fail(ctx, s.bus, ev, stageName, err)
	}

	if samples, rate, err := audio.DecodeWAV(clip.Audio); err == nil {
		env := models.MouthEnvelope{
			HopMs:  audio.EnvelopeHopMs,
			Levels: audio.Envelope(samples, rate, audio.EnvelopeHopMs),
		}
		if err := s.bus.Publish(ctx, models.Derive(ev, models.TopicMouthEnvelope, env)); err != nil {
			s.logger.Warn().Err(err).Str("corrId", ev.CorrID).Msg("Mouth envelope publish failed")
		}
	}

	stage.UX(ctx, s.bus, ev, models.UXSpeaking)
	if err := s.bus.Publish(ctx, models.Derive(ev, models.TopicPlaybackStart, models.PlaybackStart{
		DurationMs: clipDuration(clip).Milliseconds(),
		Target:     s.player.Target(),
	})); err != nil {
		s.logger.Warn().Err(err).Str("corrId", ev.CorrID).Msg("Playback start publish failed")
	}

	err = s.bus.Supervisor().Go(ctx, "playback", ev.CorrID, func(ctx context.Context) error {
		return s.play(ctx, ev, clip)
	})
	if err != nil {
		// Shutting down: close the interaction so listeners waiting on end are released.
		s.finish(ctx, ev, err)
	}
	return nil
}

func (s *Stage) play(ctx context.Context, ev models.Event, clip models.SynthesizedAudio) error {
	start := time.Now()
	err := s.player.Play(ctx, ev.CorrID, clip)
	if err == nil {
		stage.Observe(stageName, start)
	}
	s.finish(ctx, ev, err)
	return err
}

func (s *Stage) finish(ctx context.Context, ev models.Event, err error) {
	end := models.PlaybackEnd{OK: err == nil}
	if err != nil {
		end.Error = err.Error()
	}
	if perr := s.bus.Publish(ctx, models.Derive(ev, models.TopicPlaybackEnd, end)); perr != nil {
		s.logger.Warn().Err(perr).Str("corrId", ev.CorrID).Msg("Playback end publish failed")
	}
	if err != nil {
		_ = stage.Fail(ctx, s.bus, ev, stageName, err)
		return
	}
	stage.UX(ctx, s.bus, ev, models.UXIdle)
}
