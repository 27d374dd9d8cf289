// Package push delivers synthesized audio to a playback client on another
// machine.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/remote"
)

// PlayPath is the client route that accepts pushed audio.
const PlayPath = "/api/audio/play"

// CorrelationHeader carries the interaction's corr_id so the receiving side
// keeps it.
const CorrelationHeader = "X-Correlation-ID"

// Ack is the client's acknowledgement of a delivery.
type Ack struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	DurationS float64 `json:"duration_s,omitempty"`
}

// Service pushes audio to one client. Every attempt of a delivery carries the
// same corr_id, and the client plays a corr_id once, so retrying after a lost
// acknowledgement is safe.
type Service struct {
	client *remote.Client
	logger zerolog.Logger
}

// New creates a Service.
func New(client *remote.Client) *Service {
	return &Service{client: client, logger: logging.WithComponent("push")}
}

// Deliver posts clip to the client and waits for its acknowledgement.
func (s *Service) Deliver(ctx context.Context, corrID string, clip models.SynthesizedAudio) (Ack, error) {
	if len(clip.Audio) == 0 {
		return Ack{}, faults.Capability("push", "empty audio", nil)
	}

	resp, err := s.client.Do(ctx, "deliver", func(ctx context.Context) (*http.Request, error) {
		body, contentType, err := multipartClip(clip)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.URL(PlayPath), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if corrID != "" {
			req.Header.Set(CorrelationHeader, corrID)
		}
		return req, nil
	})
	if err != nil {
		return Ack{}, err
	}

	var ack Ack
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &ack); err != nil {
			return Ack{}, faults.Capability("push", "invalid acknowledgement", err)
		}
	}
	if ack.Status == "" {
		ack.Status = "ok"
	}

	s.logger.Info().
		Str("corrId", corrID).
		Str("status", ack.Status).
		Float64("durationS", ack.DurationS).
		Msg("Audio delivered")
	return ack, nil
}

func multipartClip(clip models.SynthesizedAudio) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(clip.Audio); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}
