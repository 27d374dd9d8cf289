package app

import (
	"context"
	"fmt"
	"os"

	"fish-assistant/internal/config"
	apihttp "fish-assistant/internal/http"
	"fish-assistant/internal/remote"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/playback"
	"fish-assistant/internal/service/push"
	"fish-assistant/internal/service/stt"
	"fish-assistant/internal/service/stt/google"
	"fish-assistant/internal/service/stt/mock"
	"fish-assistant/internal/service/stt/openai"
	"fish-assistant/internal/service/tts"
	"fish-assistant/internal/service/tts/polly"
	"fish-assistant/internal/service/tts/tone"
	"fish-assistant/internal/storage"
	"fish-assistant/internal/worker"
)

// STT and TTS engine names.
const (
	EngineMock   = "mock"
	EngineGoogle = "google"
	EngineOpenAI = "openai"
	EngineTone   = "tone"
	EnginePolly  = "polly"
)

func (a *Application) transcriber(ctx context.Context, o options, pool *worker.Pool) (stt.Transcriber, error) {
	if o.transcriber != nil {
		return o.transcriber, nil
	}
	cfg := a.Cfg.STT
	if cfg.Mode == config.CapabilityRemote {
		client, err := remote.New("stt", remote.Target{BaseURL: cfg.ServerURL, Timeout: cfg.Timeout}, a.policy())
		if err != nil {
			return nil, err
		}
		return stt.NewRemote(client, cfg.ModelSize), nil
	}

	var engine stt.Engine
	switch cfg.Engine {
	case EngineGoogle:
		e, err := google.New(ctx, google.Config{LanguageCode: cfg.LanguageCode})
		if err != nil {
			return nil, fmt.Errorf("google speech client: %w", err)
		}
		a.closers = append(a.closers, e.Close)
		engine = e
	case EngineOpenAI:
		e, err := openai.New(openai.Config{APIKey: a.Cfg.Chat.APIKey, BaseURL: a.Cfg.Chat.BaseURL})
		if err != nil {
			return nil, err
		}
		engine = e
	case EngineMock, "":
		engine = mock.New()
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.Engine)
	}
	return stt.NewLocal(engine, pool, cfg.ModelSize), nil
}

func (a *Application) synthesizer(o options, pool *worker.Pool) (tts.Synthesizer, error) {
	if o.synthesizer != nil {
		return o.synthesizer, nil
	}
	cfg := a.Cfg.TTS
	if cfg.Mode == config.CapabilityRemote {
		client, err := remote.New("tts", remote.Target{BaseURL: cfg.ServerURL, Timeout: cfg.Timeout}, a.policy())
		if err != nil {
			return nil, err
		}
		return tts.NewRemote(client, cfg.Voice), nil
	}

	var engine tts.Engine
	switch cfg.Engine {
	case EnginePolly:
		engine = polly.New(polly.Config{Region: a.Cfg.Polly.Region, Engine: a.Cfg.Polly.Engine})
	case EngineTone, "":
		engine = tone.New(a.Cfg.VAD.SampleRateHz)
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.Engine)
	}
	return tts.NewLocal(engine, pool, cfg.Voice), nil
}

func (a *Application) player(o options) (playback.Player, error) {
	if o.player != nil {
		return o.player, nil
	}
	cfg := a.Cfg.Playback
	if cfg.Mode == config.CapabilityRemote {
		client, err := remote.New("push", remote.Target{BaseURL: cfg.ClientURL, Timeout: cfg.Timeout}, a.policy())
		if err != nil {
			return nil, err
		}
		return playback.NewRemote(push.New(client)), nil
	}
	return playback.NewLocal(playback.TimedDevice{}), nil
}

// store picks the audio store behind url-mode synthesis responses.
func (a *Application) store(ctx context.Context, deps *apihttp.Deps) error {
	if a.Cfg.TTS.ResponseMode != apihttp.ResponseURL {
		return nil
	}
	cfg := a.Cfg.Storage
	switch cfg.Backend {
	case "minio":
		m, err := storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
			URLExpiry: cfg.URLExpiry,
		})
		if err != nil {
			return err
		}
		deps.Store = m
	case "memory", "":
		mem := storage.NewMemory(0, cfg.URLExpiry)
		deps.Store = mem
		deps.Audio = mem
	default:
		return fmt.Errorf("unknown audio store %q", cfg.Backend)
	}
	return nil
}

func wavFileSource(path string, frameMs int) (audio.FrameSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio input: %w", err)
	}
	src, err := audio.NewWAVSource(data, frameMs, true)
	if err != nil {
		return nil, fmt.Errorf("audio input %s: %w", path, err)
	}
	return src, nil
}
