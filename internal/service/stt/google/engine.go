// Package google provides a Google Cloud Speech-to-Text engine.
package google

import (
	"context"
	"encoding/binary"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode string
	Model        string // Cloud Speech model, e.g. "latest_short"; empty uses the default
}

// DefaultConfig returns en-US with the default model.
func DefaultConfig() Config {
	return Config{LanguageCode: "en-US"}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Engine implements stt.Engine with synchronous Recognize calls.
type Engine struct {
	cfg       Config
	recognize recognizeFunc
	close     func() error
}

// New creates an engine. Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	}, c.Close), nil
}

func newEngine(cfg Config, fn recognizeFunc, closeFn func() error) *Engine {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultConfig().LanguageCode
	}
	return &Engine{cfg: cfg, recognize: fn, close: closeFn}
}

// Name implements stt.Engine.
func (e *Engine) Name() string { return "google" }

// Recognize implements stt.Engine. ModelSize hints are ignored; the
// configured Cloud Speech model applies.
func (e *Engine) Recognize(ctx context.Context, req stt.Request) (models.Transcript, error) {
	resp, err := e.recognize(ctx, e.buildRequest(req))
	if err != nil {
		return models.Transcript{}, faults.Capability("stt.google", "recognize failed", err)
	}

	var (
		parts []string
		conf  float32
		n     int
	)
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		conf += alts[0].GetConfidence()
		n++
	}

	out := models.Transcript{Text: strings.Join(parts, " ")}
	if n > 0 {
		c := float64(conf / float32(n))
		out.Confidence = &c
	}
	return out, nil
}

func (e *Engine) buildRequest(req stt.Request) *speechpb.RecognizeRequest {
	content := make([]byte, len(req.Samples)*2)
	for i, s := range req.Samples {
		binary.LittleEndian.PutUint16(content[i*2:], uint16(s))
	}
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(req.SampleRate),
			LanguageCode:    e.cfg.LanguageCode,
			Model:           e.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	}
}

// Close releases the client.
func (e *Engine) Close() error {
	if e.close != nil {
		return e.close()
	}
	return nil
}
