package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/models"
	"fish-assistant/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.cfg, nil)
			if m.Enabled() {
				t.Error("expected mirror to be disabled")
			}
			if m.writer != nil {
				t.Error("expected nil writer when disabled")
			}
			if err := m.Export(context.Background(), models.New(models.TopicUXState, models.UXState{State: "idle"})); err != nil {
				t.Errorf("expected log-only export to succeed, got %v", err)
			}
			if err := m.Close(); err != nil {
				t.Errorf("expected no error closing disabled mirror, got %v", err)
			}
		})
	}
}

func TestMirror_Export_LogOnlySkipsEncoding(t *testing.T) {
	m := New(&Config{Enabled: false}, schema.MustNew())

	// Neither encodable nor a valid envelope: log-only mode must not look.
	ev := models.Event{Topic: models.TopicTTSAudio, CorrID: "not a valid id!", Payload: func() {}}
	if err := m.Export(context.Background(), ev); err != nil {
		t.Errorf("expected log-only export to skip encoding, got %v", err)
	}
}

func TestNew_Enabled(t *testing.T) {
	m := New(&Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "fish.events", Principal: "p"}, nil)
	if !m.Enabled() || m.writer == nil {
		t.Fatal("expected enabled mirror with a writer")
	}
	if m.topic != "fish.events" || m.principal != "p" {
		t.Errorf("unexpected topic/principal %s/%s", m.topic, m.principal)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func enabledMirror(w *fakeWriter) *Mirror {
	m := New(&Config{Topic: "fish.events", Principal: "svc"}, schema.MustNew())
	m.writer = w
	m.enabled = true
	return m
}

func TestMirror_Export(t *testing.T) {
	w := &fakeWriter{}
	m := enabledMirror(w)

	ev := models.New(models.TopicIntent, models.Intent{Name: "joke", Confidence: 0.9, Entities: map[string]any{}})
	if err := m.Export(context.Background(), ev); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != ev.CorrID {
		t.Errorf("expected key %s, got %s", ev.CorrID, msg.Key)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers[HeaderTopic] != models.TopicIntent || headers[HeaderPrincipal] != "svc" {
		t.Errorf("unexpected headers %v", headers)
	}

	var decoded struct {
		Topic   string `json:"topic"`
		CorrID  string `json:"corr_id"`
		Payload struct {
			Name string `json:"name"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.CorrID != ev.CorrID || decoded.Payload.Name != "joke" {
		t.Errorf("unexpected value %s", msg.Value)
	}

	_ = m.Close()
	if !w.closed {
		t.Error("expected writer closed")
	}
}

func TestMirror_Export_WriteFailure(t *testing.T) {
	boom := errors.New("broker unavailable")
	m := enabledMirror(&fakeWriter{err: boom})
	if err := m.Export(context.Background(), models.New(models.TopicUXState, nil)); !errors.Is(err, boom) {
		t.Errorf("expected write error, got %v", err)
	}
}

func TestMirror_Export_RejectsInvalidEnvelope(t *testing.T) {
	w := &fakeWriter{}
	m := enabledMirror(w)
	err := m.Export(context.Background(), models.NewWithCorrID(models.TopicUXState, "not a valid id", nil))
	if !errors.Is(err, schema.ErrInvalid) {
		t.Errorf("expected schema.ErrInvalid, got %v", err)
	}
	if len(w.msgs) != 0 {
		t.Error("expected invalid event not to be written")
	}
}

func TestMirror_AsBusMirror(t *testing.T) {
	w := &fakeWriter{}
	b := bus.New(bus.WithMirror(enabledMirror(w)))
	if err := b.Publish(context.Background(), models.New(models.TopicTranscript, models.Transcript{Text: "hi"})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := b.Supervisor().Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Errorf("expected the published event mirrored, got %d", len(w.msgs))
	}
}
