package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/remote"
	"fish-assistant/internal/service/audio"
)

// TranscribePath is the peer route for transcription.
const TranscribePath = "/api/stt/transcribe"

// Remote transcribes on a peer through POST /api/stt/transcribe.
type Remote struct {
	client    *remote.Client
	modelSize string
}

// NewRemote creates a Remote transcriber.
func NewRemote(client *remote.Client, modelSize string) *Remote {
	return &Remote{client: client, modelSize: modelSize}
}

type transcribeResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Transcribe implements Transcriber.
func (r *Remote) Transcribe(ctx context.Context, req Request) (models.Transcript, error) {
	if err := validate(req); err != nil {
		return models.Transcript{}, err
	}
	modelSize := req.ModelSize
	if modelSize == "" {
		modelSize = r.modelSize
	}
	wav := audio.EncodeWAV(req.Samples, req.SampleRate)

	resp, err := r.client.Do(ctx, "transcribe", func(ctx context.Context) (*http.Request, error) {
		body, contentType, err := multipartAudio(wav, modelSize)
		if err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.client.URL(TranscribePath), body)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", contentType)
		return httpReq, nil
	})
	if err != nil {
		return models.Transcript{}, err
	}

	var out transcribeResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return models.Transcript{}, faults.Capability("stt", "invalid transcribe response", err)
	}
	return models.Transcript{Text: out.Text, Confidence: out.Confidence}, nil
}

func multipartAudio(wav []byte, modelSize string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("model_size", modelSize); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}
