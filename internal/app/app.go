// Package app assembles the runtime for one deployment mode: it picks a
// Local or Remote variant for every capability, wires the stages to the bus,
// and builds the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/config"
	"fish-assistant/internal/events"
	apihttp "fish-assistant/internal/http"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/remote"
	"fish-assistant/internal/router"
	"fish-assistant/internal/schema"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/nlu"
	"fish-assistant/internal/service/playback"
	"fish-assistant/internal/service/segment"
	"fish-assistant/internal/service/skills"
	"fish-assistant/internal/service/stt"
	"fish-assistant/internal/service/tts"
	"fish-assistant/internal/worker"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Bus      *bus.Bus
	Router   *router.Router
	Skills   *skills.Registry
	Loop     *segment.Loop // nil unless a frame source is configured
	Mirror   *events.Mirror
	handler  nethttp.Handler
	timer    *skills.Timer
	closers  []func() error
	ready    atomic.Bool
	shutdown atomic.Bool
}

// Option overrides a collaborator that New would otherwise build from
// configuration.
type Option func(*options)

type options struct {
	transcriber stt.Transcriber
	synthesizer tts.Synthesizer
	player      playback.Player
	frames      audio.FrameSource
	chat        skills.Skill
	now         func() time.Time
}

// WithTranscriber replaces the configured transcriber.
func WithTranscriber(t stt.Transcriber) Option { return func(o *options) { o.transcriber = t } }

// WithSynthesizer replaces the configured synthesizer.
func WithSynthesizer(s tts.Synthesizer) Option { return func(o *options) { o.synthesizer = s } }

// WithPlayer replaces the configured player.
func WithPlayer(p playback.Player) Option { return func(o *options) { o.player = p } }

// WithFrameSource feeds the conversation loop from src instead of AUDIO_INPUT.
func WithFrameSource(src audio.FrameSource) Option { return func(o *options) { o.frames = src } }

// WithChatSkill installs the fallback chat skill without an API key.
func WithChatSkill(s skills.Skill) Option { return func(o *options) { o.chat = s } }

// WithClock sets the clock used by the time skill.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New constructs the application for cfg.Service.Mode.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	validator, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}
	a.Mirror = events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	}, validator)
	a.closers = append(a.closers, a.Mirror.Close)
	a.Bus = bus.New(bus.WithMirror(a.Mirror))

	pool := worker.NewPool(cfg.Workers.Size)
	deps := apihttp.Deps{
		Mode:         cfg.Service.Mode,
		ModelSize:    cfg.STT.ModelSize,
		Voice:        cfg.TTS.Voice,
		ResponseMode: cfg.TTS.ResponseMode,
		Validator:    validator,
		RateLimit:    cfg.Service.RateLimit,
	}

	switch cfg.Service.Mode {
	case config.ModeClient:
		player, err := a.player(o)
		if err != nil {
			return nil, err
		}
		if err := playback.NewStage(player, a.Bus).Attach(); err != nil {
			return nil, err
		}
		deps.Bus = a.Bus

	case config.ModeServer, config.ModeFull:
		transcriber, err := a.transcriber(ctx, o, pool)
		if err != nil {
			return nil, err
		}
		synthesizer, err := a.synthesizer(o, pool)
		if err != nil {
			return nil, err
		}
		player, err := a.player(o)
		if err != nil {
			return nil, err
		}
		if err := a.attachPipeline(o, transcriber, synthesizer, player); err != nil {
			return nil, err
		}

		deps.Transcriber = transcriber
		deps.Synthesizer = synthesizer
		if err := a.store(ctx, &deps); err != nil {
			return nil, err
		}
		if cfg.Service.Mode == config.ModeFull {
			deps.Bus = a.Bus
		}

		if err := a.conversation(o); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown deployment mode %q", cfg.Service.Mode)
	}

	a.handler = apihttp.NewRouter(deps)

	a.Logger.Info().
		Str("mode", cfg.Service.Mode).
		Str("stt", cfg.STT.Mode+"/"+cfg.STT.Engine).
		Str("tts", cfg.TTS.Mode+"/"+cfg.TTS.Engine).
		Str("playback", cfg.Playback.Mode).
		Bool("kafka", a.Mirror.Enabled()).
		Bool("conversationLoop", a.Loop != nil).
		Msg("Fish assistant application created")
	return a, nil
}

func (a *Application) attachPipeline(o options, t stt.Transcriber, s tts.Synthesizer, p playback.Player) error {
	cfg := a.Cfg
	a.Router = router.New(cfg.TTS.Voice)

	a.timer = skills.NewTimer(func(say string) {
		// A fired timer starts a new interaction.
		ev := models.New(models.TopicTTSRequest, models.TTSRequest{Text: say, Voice: cfg.TTS.Voice})
		if err := a.Bus.Publish(context.Background(), ev); err != nil {
			a.Logger.Warn().Err(err).Str("corrId", ev.CorrID).Msg("Timer announcement failed")
		}
	})
	a.Skills = skills.NewRegistry(
		skills.Echo(),
		skills.Time(o.now),
		skills.Joke(),
		skills.Smalltalk(),
		skills.Weather(),
		skills.Music(),
		skills.Unknown(),
		a.timer,
	)

	chat := o.chat
	if chat == nil && cfg.Chat.APIKey != "" {
		chat = skills.NewChat(skills.ChatConfig{APIKey: cfg.Chat.APIKey, BaseURL: cfg.Chat.BaseURL, Model: cfg.Chat.Model})
	}
	if chat != nil {
		a.Skills.Register(chat)
		a.Router.RegisterIntent(nlu.IntentUnknown, chat.Name())
	}

	attachers := []interface{ Attach() error }{
		stt.NewStage(t, a.Bus, cfg.STT.ModelSize),
		nlu.NewStage(nlu.NewRules(), a.Bus),
		skills.NewDispatcher(a.Skills, a.Bus),
		tts.NewStage(s, a.Bus),
		playback.NewStage(p, a.Bus),
	}
	for _, at := range attachers {
		if err := at.Attach(); err != nil {
			return err
		}
	}
	return a.Router.Attach(a.Bus)
}

func (a *Application) conversation(o options) error {
	src := o.frames
	if src == nil && a.Cfg.Service.AudioInput != "" {
		s, err := wavFileSource(a.Cfg.Service.AudioInput, a.Cfg.VAD.FrameMs)
		if err != nil {
			return err
		}
		src = s
	}
	if src == nil {
		return nil
	}
	lim := a.Cfg.SegmentLimits
	a.Loop = segment.New(src, segment.EnergyDetector{Threshold: a.Cfg.VAD.Threshold}, a.Bus, segment.Limits{
		TrailingSilence: lim.TrailingSilence,
		MaxDuration:     lim.MaxDuration,
		MinSpeech:       lim.MinSpeech,
		QueueSize:       lim.QueueSize,
	})
	return a.Loop.Attach()
}

func (a *Application) policy() remote.RetryPolicy {
	return remote.RetryPolicy{
		MaxAttempts: a.Cfg.Retry.MaxAttempts,
		BaseDelay:   a.Cfg.Retry.BaseDelay,
		MaxDelay:    a.Cfg.Retry.MaxDelay,
	}
}

// Handler returns the HTTP surface for this mode.
func (a *Application) Handler() nethttp.Handler { return a.handler }

// Ready reports whether Start has completed and Shutdown has not begun.
func (a *Application) Ready() bool { return a.ready.Load() && !a.shutdown.Load() }

// Start performs any startup work required before serving traffic. The
// conversation loop, when configured, runs as a supervised task.
func (a *Application) Start(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	if a.Loop != nil {
		err := a.Bus.Supervisor().Go(ctx, "conversation", "", func(ctx context.Context) error {
			err := a.Loop.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("start conversation loop: %w", err)
		}
	}
	a.ready.Store(true)
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Fish assistant starting")
	return nil
}

// Ingest starts one interaction from a recorded utterance and returns its
// corr_id. It returns once every stage up to playback start has run.
func (a *Application) Ingest(ctx context.Context, samples []int16, sampleRate int, source string) (string, error) {
	ev := models.New(models.TopicAudioRecorded, models.AudioRecorded{
		Samples:    samples,
		SampleRate: sampleRate,
		DurationMs: audio.SamplesDuration(len(samples), sampleRate).Milliseconds(),
		Source:     source,
	})
	return ev.CorrID, a.Bus.Publish(ctx, ev)
}

// Shutdown stops the conversation loop, waits for detached work such as
// in-flight playback, and closes external clients.
func (a *Application) Shutdown(ctx context.Context) error {
	if !a.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	a.Logger.Info().Msg("Fish assistant shutting down")

	if a.Loop != nil {
		a.Loop.Stop()
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	errs := []error{a.Bus.Supervisor().Shutdown(ctx)}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
