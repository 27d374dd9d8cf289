package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/remote"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/worker"
)

type stubEngine struct {
	mu   sync.Mutex
	text string
	err  error
	reqs []Request
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Recognize(ctx context.Context, req Request) (models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return models.Transcript{Text: s.text}, s.err
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func record(t *testing.T, b *bus.Bus, topics ...string) *recorder {
	t.Helper()
	r := &recorder{}
	for _, topic := range topics {
		if err := b.Subscribe(topic, func(ctx context.Context, ev models.Event) error {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("subscribe %s: %v", topic, err)
		}
	}
	return r
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Topic
	}
	return out
}

func (r *recorder) find(topic string) (models.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Topic == topic {
			return ev, true
		}
	}
	return models.Event{}, false
}

func TestLocal_DefaultsModelSize(t *testing.T) {
	eng := &stubEngine{text: "hi"}
	l := NewLocal(eng, worker.NewPool(1), "tiny")

	tr, err := l.Transcribe(context.Background(), Request{Samples: []int16{1}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hi" {
		t.Errorf("expected 'hi', got %q", tr.Text)
	}
	if eng.reqs[0].ModelSize != "tiny" {
		t.Errorf("expected model size 'tiny', got %q", eng.reqs[0].ModelSize)
	}
}

func TestLocal_MalformedAudio(t *testing.T) {
	eng := &stubEngine{}
	l := NewLocal(eng, worker.NewPool(1), "tiny")

	tests := []struct {
		name string
		req  Request
	}{
		{"no samples", Request{SampleRate: 16000}},
		{"no rate", Request{Samples: []int16{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Transcribe(context.Background(), tt.req)
			var ce *faults.CapabilityError
			if !errors.As(err, &ce) {
				t.Errorf("expected CapabilityError, got %v", err)
			}
		})
	}
	if len(eng.reqs) != 0 {
		t.Errorf("expected engine not to be called, got %d calls", len(eng.reqs))
	}
}

func TestRemote_Transcribe(t *testing.T) {
	var gotModel string
	var gotAudio []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TranscribePath {
			http.NotFound(w, r)
			return
		}
		gotModel = r.FormValue("model_size")
		f, _, err := r.FormFile("audio")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotAudio, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"what time is it","confidence":0.75}`))
	}))
	defer srv.Close()

	c, err := remote.New("stt", remote.Target{BaseURL: srv.URL, Timeout: time.Second}, remote.DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	r := NewRemote(c, "base")

	tr, err := r.Transcribe(context.Background(), Request{Samples: []int16{5, 6}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "what time is it" {
		t.Errorf("expected transcript, got %q", tr.Text)
	}
	if tr.Confidence == nil || *tr.Confidence != 0.75 {
		t.Errorf("expected confidence 0.75, got %v", tr.Confidence)
	}
	if gotModel != "base" {
		t.Errorf("expected model_size 'base', got %q", gotModel)
	}
	samples, rate, err := audio.DecodeWAV(gotAudio)
	if err != nil || rate != 16000 || len(samples) != 2 {
		t.Errorf("expected uploaded WAV with 2 samples at 16kHz, got %d samples at %d (%v)", len(samples), rate, err)
	}
}

func TestRemote_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, _ := remote.New("stt", remote.Target{BaseURL: srv.URL, Timeout: time.Second}, remote.DefaultRetryPolicy())
	_, err := NewRemote(c, "tiny").Transcribe(context.Background(), Request{Samples: []int16{1}, SampleRate: 16000})

	var rej *faults.RejectedRequestError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedRequestError, got %v", err)
	}
}

func recorded(samples ...int16) models.AudioRecorded {
	return models.AudioRecorded{Samples: samples, SampleRate: 16000, Source: "test"}
}

func TestStage_PublishesTranscript(t *testing.T) {
	b := bus.New()
	rec := record(t, b, models.TopicTranscript, models.TopicUXState, models.TopicPipelineFailed)
	s := NewStage(NewLocal(&stubEngine{text: "  tell me a joke "}, worker.NewPool(1), "tiny"), b, "tiny")
	if err := s.Attach(); err != nil {
		t.Fatalf("attach: %v", err)
	}

	ev := models.New(models.TopicAudioRecorded, recorded(1, 2, 3))
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	out, ok := rec.find(models.TopicTranscript)
	if !ok {
		t.Fatalf("expected stt.transcript, got %v", rec.topics())
	}
	if out.CorrID != ev.CorrID {
		t.Errorf("expected corr_id %s, got %s", ev.CorrID, out.CorrID)
	}
	tr, _ := models.PayloadAs[models.Transcript](out)
	if tr.Text != "tell me a joke" {
		t.Errorf("expected trimmed text, got %q", tr.Text)
	}
	if _, failed := rec.find(models.TopicPipelineFailed); failed {
		t.Error("expected no pipeline.failed")
	}
}

func TestStage_EmptyTranscriptStops(t *testing.T) {
	b := bus.New()
	rec := record(t, b, models.TopicTranscript, models.TopicPipelineFailed)
	s := NewStage(NewLocal(&stubEngine{text: "   "}, worker.NewPool(1), "tiny"), b, "tiny")
	_ = s.Attach()

	if err := b.Publish(context.Background(), models.New(models.TopicAudioRecorded, recorded(1))); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := rec.topics(); len(got) != 0 {
		t.Errorf("expected no transcript or failure, got %v", got)
	}
}

func TestStage_FailurePublishesPipelineFailed(t *testing.T) {
	b := bus.New()
	rec := record(t, b, models.TopicTranscript, models.TopicPipelineFailed, models.TopicUXState)
	s := NewStage(NewLocal(&stubEngine{}, worker.NewPool(1), "tiny"), b, "tiny")
	_ = s.Attach()

	// No samples: the local transcriber rejects the request.
	ev := models.New(models.TopicAudioRecorded, recorded())
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("expected failure to be absorbed by the stage, got %v", err)
	}

	failed, ok := rec.find(models.TopicPipelineFailed)
	if !ok {
		t.Fatalf("expected pipeline.failed, got %v", rec.topics())
	}
	f, _ := models.PayloadAs[models.StageFailure](failed)
	if f.Stage != "stt" || f.Kind != faults.KindCapability {
		t.Errorf("unexpected failure payload %+v", f)
	}
	if failed.CorrID != ev.CorrID {
		t.Errorf("expected corr_id %s, got %s", ev.CorrID, failed.CorrID)
	}
	if _, ok := rec.find(models.TopicTranscript); ok {
		t.Error("expected no transcript")
	}
}
