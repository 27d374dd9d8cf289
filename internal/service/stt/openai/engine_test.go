package openai

import (
	"context"
	"errors"
	"io"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/service/stt"
)

type fakeClient struct {
	req  goopenai.AudioRequest
	body []byte
	resp goopenai.AudioResponse
	err  error
}

func (f *fakeClient) CreateTranscription(ctx context.Context, req goopenai.AudioRequest) (goopenai.AudioResponse, error) {
	f.req = req
	if req.Reader != nil {
		f.body, _ = io.ReadAll(req.Reader)
	}
	return f.resp, f.err
}

func TestNew_MissingKey(t *testing.T) {
	_, err := New(Config{})
	var ce *faults.CapabilityError
	if !errors.As(err, &ce) {
		t.Errorf("expected CapabilityError, got %v", err)
	}
}

func TestEngine_Recognize(t *testing.T) {
	fc := &fakeClient{resp: goopenai.AudioResponse{Text: "hello fish"}}
	e := newEngine(fc, Config{Language: "en"})

	tr, err := e.Recognize(context.Background(), stt.Request{Samples: []int16{1, 2, 3}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hello fish" {
		t.Errorf("expected 'hello fish', got %q", tr.Text)
	}
	if fc.req.Model != goopenai.Whisper1 {
		t.Errorf("expected model %s, got %s", goopenai.Whisper1, fc.req.Model)
	}
	if fc.req.FilePath != "audio.wav" {
		t.Errorf("expected file name audio.wav, got %s", fc.req.FilePath)
	}
	if len(fc.body) != 44+6 || string(fc.body[:4]) != "RIFF" {
		t.Errorf("expected a 50 byte WAV upload, got %d bytes", len(fc.body))
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"server error", &goopenai.APIError{HTTPStatusCode: 503, Message: "overloaded"}, faults.KindTransport},
		{"bad request", &goopenai.APIError{HTTPStatusCode: 400, Message: "bad audio"}, faults.KindRejected},
		{"other", errors.New("boom"), faults.KindCapability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := faults.Kind(mapError(tt.err)); got != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, got)
			}
		})
	}
}
