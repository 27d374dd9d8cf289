package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/remote"
)

// SynthesizePath is the peer route for synthesis.
const SynthesizePath = "/api/tts/synthesize"

// audioURLKeys are the JSON fields a peer may use to point at the clip, in
// order of preference.
var audioURLKeys = []string{"audio_url", "wav_url", "url"}

// Remote synthesizes on a peer through POST /api/tts/synthesize. The peer
// answers with the audio itself or with JSON naming a URL to fetch it from.
type Remote struct {
	client *remote.Client
	voice  string
}

// NewRemote creates a Remote synthesizer.
func NewRemote(client *remote.Client, voice string) *Remote {
	return &Remote{client: client, voice: voice}
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize implements Synthesizer.
func (r *Remote) Synthesize(ctx context.Context, text, voice string) (models.SynthesizedAudio, error) {
	if strings.TrimSpace(text) == "" {
		return models.SynthesizedAudio{}, faults.Capability("tts", "empty text", nil)
	}
	if voice == "" {
		voice = r.voice
	}
	payload, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return models.SynthesizedAudio{}, err
	}

	resp, err := r.client.Do(ctx, "synthesize", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.client.URL(SynthesizePath), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return models.SynthesizedAudio{}, err
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return FromWAV(resp.Body, resp.Header.Get("Content-Type"))
	}

	ref, err := audioURL(resp.Body)
	if err != nil {
		return models.SynthesizedAudio{}, err
	}
	return r.fetch(ctx, ref)
}

func (r *Remote) fetch(ctx context.Context, ref string) (models.SynthesizedAudio, error) {
	target, err := r.client.Resolve(ref)
	if err != nil {
		return models.SynthesizedAudio{}, faults.Capability("tts", "invalid audio url", err)
	}
	resp, err := r.client.Do(ctx, "fetch_audio", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return models.SynthesizedAudio{}, err
	}
	out, err := FromWAV(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return out, err
	}
	out.URL = target
	return out, nil
}

func audioURL(body []byte) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", faults.Capability("tts", "invalid synthesize response", err)
	}
	for _, k := range audioURLKeys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", faults.Capability("tts", "synthesize response has no audio url", nil)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}
