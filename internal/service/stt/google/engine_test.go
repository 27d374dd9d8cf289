package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
}

func TestEngine_Recognize(t *testing.T) {
	var got *speechpb.RecognizeRequest
	e := newEngine(Config{LanguageCode: "es-ES"}, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hola ", Confidence: 0.8}}},
			{Alternatives: nil},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "pez", Confidence: 0.6}}},
		}}, nil
	}, nil)

	tr, err := e.Recognize(context.Background(), stt.Request{Samples: []int16{1, -1}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hola pez" {
		t.Errorf("expected 'hola pez', got %q", tr.Text)
	}
	if tr.Confidence == nil || *tr.Confidence < 0.69 || *tr.Confidence > 0.71 {
		t.Errorf("expected mean confidence 0.7, got %v", tr.Confidence)
	}

	cfg := got.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16, got %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 16000 || cfg.GetLanguageCode() != "es-ES" {
		t.Errorf("unexpected config %+v", cfg)
	}
	content := got.GetAudio().GetContent()
	if len(content) != 4 || content[0] != 0x01 || content[2] != 0xff {
		t.Errorf("expected little-endian PCM content, got %v", content)
	}
}

func TestEngine_Recognize_Error(t *testing.T) {
	e := newEngine(DefaultConfig(), func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return nil, errors.New("permission denied")
	}, nil)

	_, err := e.Recognize(context.Background(), stt.Request{Samples: []int16{1}, SampleRate: 8000})
	var ce *faults.CapabilityError
	if !errors.As(err, &ce) {
		t.Errorf("expected CapabilityError, got %v", err)
	}
}
