// Package playback defines the playback capability and the stage that drives
// it with start and end events.
package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/push"
)

// Player plays a clip and returns once it has finished.
type Player interface {
	Play(ctx context.Context, corrID string, clip models.SynthesizedAudio) error
	Target() string
}

// Device is an audio output.
type Device interface {
	Play(ctx context.Context, clip models.SynthesizedAudio) error
}

// Local plays on a device attached to this machine.
type Local struct {
	device Device
	logger zerolog.Logger
}

// NewLocal creates a Local player.
func NewLocal(device Device) *Local {
	return &Local{device: device, logger: logging.WithComponent("playback.local")}
}

// Play implements Player.
func (l *Local) Play(ctx context.Context, corrID string, clip models.SynthesizedAudio) error {
	if l.device == nil {
		return faults.Capability("playback", "device unavailable", nil)
	}
	l.logger.Debug().Str("corrId", corrID).Int64("durationMs", clipDuration(clip).Milliseconds()).Msg("Playing")
	return l.device.Play(ctx, clip)
}

// Target implements Player.
func (l *Local) Target() string { return "local" }

// Remote plays by pushing the clip to a client machine.
type Remote struct {
	push *push.Service
}

// NewRemote creates a Remote player.
func NewRemote(s *push.Service) *Remote {
	return &Remote{push: s}
}

// Play implements Player. It returns once the client acknowledged the clip.
func (r *Remote) Play(ctx context.Context, corrID string, clip models.SynthesizedAudio) error {
	ack, err := r.push.Deliver(ctx, corrID, clip)
	if err != nil {
		return err
	}
	if ack.Status != "ok" {
		return faults.Capability("playback", "client refused audio: "+ack.Message, nil)
	}
	return nil
}

// Target implements Player.
func (r *Remote) Target() string { return "remote" }

// TimedDevice stands in for a speaker: it holds for the clip's duration. It
// keeps turn-taking and mouth animation timing realistic on machines without
// an output device.
type TimedDevice struct {
	// Sleep waits for d or until ctx ends. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Play implements Device.
func (d TimedDevice) Play(ctx context.Context, clip models.SynthesizedAudio) error {
	sleep := d.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, clipDuration(clip))
}

func clipDuration(clip models.SynthesizedAudio) time.Duration {
	if clip.DurationMs > 0 {
		return time.Duration(clip.DurationMs) * time.Millisecond
	}
	return time.Duration(audio.WAVDurationMs(clip.Audio)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
