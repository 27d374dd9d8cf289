// Package openai provides a Whisper transcription engine for any
// OpenAI-compatible endpoint.
package openai

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/stt"
)

type transcriptionClient interface {
	CreateTranscription(ctx context.Context, req goopenai.AudioRequest) (goopenai.AudioResponse, error)
}

// Config holds endpoint settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// Engine implements stt.Engine.
type Engine struct {
	client transcriptionClient
	cfg    Config
}

// New creates an engine. Model defaults to whisper-1.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, faults.Capability("stt.openai", "missing API key", nil)
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newEngine(goopenai.NewClientWithConfig(oc), cfg), nil
}

func newEngine(c transcriptionClient, cfg Config) *Engine {
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	return &Engine{client: c, cfg: cfg}
}

// Name implements stt.Engine.
func (e *Engine) Name() string { return "openai" }

// Recognize implements stt.Engine.
func (e *Engine) Recognize(ctx context.Context, req stt.Request) (models.Transcript, error) {
	wav := audio.EncodeWAV(req.Samples, req.SampleRate)
	resp, err := e.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    e.cfg.Model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: e.cfg.Language,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return models.Transcript{}, mapError(err)
	}
	return models.Transcript{Text: resp.Text}, nil
}

func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode >= 500:
			return &faults.TransportError{Op: "stt.openai", StatusCode: apiErr.HTTPStatusCode, Err: err}
		case apiErr.HTTPStatusCode >= 400:
			return &faults.RejectedRequestError{Op: "stt.openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= http.StatusInternalServerError {
		return &faults.TransportError{Op: "stt.openai", StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return faults.Capability("stt.openai", "transcription failed", err)
}
