package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fish-assistant/internal/config"
	"fish-assistant/internal/models"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/playback"
	"fish-assistant/internal/service/push"
	"fish-assistant/internal/service/skills"
	"fish-assistant/internal/service/stt"
)

func testConfig(mode string) *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Principal: "test", Mode: mode},
		STT:     config.STTConfig{Mode: config.CapabilityLocal, Engine: EngineMock, ModelSize: "tiny", Timeout: time.Second},
		TTS:     config.TTSConfig{Mode: config.CapabilityLocal, Engine: EngineTone, Timeout: time.Second, ResponseMode: "wav"},
		Playback: config.PlaybackConfig{
			Mode:    config.CapabilityLocal,
			Timeout: time.Second,
		},
		Retry:         config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		SegmentLimits: config.SegmentLimitsConfig{TrailingSilence: 90 * time.Millisecond, MaxDuration: 5 * time.Second, QueueSize: 2},
		VAD:           config.VADConfig{SampleRateHz: 16000, FrameMs: 30, Threshold: 0.02},
		Storage:       config.StorageConfig{Backend: "memory"},
		Workers:       config.WorkersConfig{Size: 2},
	}
}

// instantPlayer plays clips without holding for their duration.
func instantPlayer() playback.Player {
	return playback.NewLocal(playback.TimedDevice{Sleep: func(context.Context, time.Duration) error { return nil }})
}

type trace struct {
	mu     sync.Mutex
	events []models.Event
}

func (tr *trace) handler(ctx context.Context, ev models.Event) error {
	tr.mu.Lock()
	tr.events = append(tr.events, ev)
	tr.mu.Unlock()
	return nil
}

func (tr *trace) byTopic() map[string][]models.Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := map[string][]models.Event{}
	for _, ev := range tr.events {
		out[ev.Topic] = append(out[ev.Topic], ev)
	}
	return out
}

func watchAll(t *testing.T, a *Application) *trace {
	t.Helper()
	tr := &trace{}
	topics := append([]string{models.TopicPipelineFailed}, models.PipelineTopics...)
	for _, topic := range topics {
		if err := a.Bus.Subscribe(topic, tr.handler); err != nil {
			t.Fatalf("subscribe %s: %v", topic, err)
		}
	}
	return tr
}

func shutdown(t *testing.T, a *Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func speech(d time.Duration) []int16 {
	n := int(int64(d) * 16000 / int64(time.Second))
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 6000
		} else {
			s[i] = -6000
		}
	}
	return s
}

func TestApplication_EndToEndSharesCorrID(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.ModeFull), WithPlayer(instantPlayer()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr := watchAll(t, a)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	corrID, err := a.Ingest(context.Background(), speech(500*time.Millisecond), 16000, "test")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	shutdown(t, a)

	got := tr.byTopic()
	if len(got[models.TopicPipelineFailed]) != 0 {
		t.Fatalf("expected no failures, got %+v", got[models.TopicPipelineFailed])
	}
	for _, topic := range models.PipelineTopics {
		evs := got[topic]
		if len(evs) != 1 {
			t.Errorf("%s: expected exactly one event, got %d", topic, len(evs))
			continue
		}
		if evs[0].CorrID != corrID {
			t.Errorf("%s: expected corr_id %s, got %s", topic, corrID, evs[0].CorrID)
		}
	}

	intent, _ := models.PayloadAs[models.Intent](got[models.TopicIntent][0])
	if intent.Name != "joke" {
		t.Errorf("expected the scripted joke request, got intent %q", intent.Name)
	}
	end, _ := models.PayloadAs[models.PlaybackEnd](got[models.TopicPlaybackEnd][0])
	if !end.OK {
		t.Errorf("expected successful playback, got %+v", end)
	}
}

type scriptedTranscriber string

func (s scriptedTranscriber) Transcribe(context.Context, stt.Request) (models.Transcript, error) {
	return models.Transcript{Text: string(s)}, nil
}

func TestApplication_UnknownRoutesToChat(t *testing.T) {
	chat := skills.NewFunc("chat", func(ctx context.Context, req models.SkillRequest) (string, error) {
		return "Ask me again when the tide is low.", nil
	})
	a, err := New(context.Background(), testConfig(config.ModeFull),
		WithPlayer(instantPlayer()),
		WithTranscriber(scriptedTranscriber("what is the meaning of life")),
		WithChatSkill(chat),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr := watchAll(t, a)

	if _, err := a.Ingest(context.Background(), speech(100*time.Millisecond), 16000, "test"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	shutdown(t, a)

	resp := tr.byTopic()[models.TopicSkillResponse]
	if len(resp) != 1 {
		t.Fatalf("expected one skill response, got %d", len(resp))
	}
	out, _ := models.PayloadAs[models.SkillResponse](resp[0])
	if out.Skill != "chat" || out.Utterance != "Ask me again when the tide is low." {
		t.Errorf("expected chat to answer, got %+v", out)
	}
}

func TestApplication_ConversationLoopDrivesPipeline(t *testing.T) {
	var samples []int16
	samples = append(samples, make([]int16, 4800)...)
	samples = append(samples, speech(600*time.Millisecond)...)
	samples = append(samples, make([]int16, 16000)...)

	a, err := New(context.Background(), testConfig(config.ModeFull),
		WithPlayer(instantPlayer()),
		WithFrameSource(audio.NewSampleSource(samples, 16000, 30, false)),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Loop == nil {
		t.Fatal("expected a conversation loop with a frame source")
	}

	ended := make(chan models.Event, 1)
	_ = a.Bus.Subscribe(models.TopicPlaybackEnd, func(ctx context.Context, ev models.Event) error {
		ended <- ev
		return nil
	})
	recorded := make(chan models.Event, 1)
	_ = a.Bus.Subscribe(models.TopicAudioRecorded, func(ctx context.Context, ev models.Event) error {
		recorded <- ev
		return nil
	})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case ev := <-ended:
		rec := <-recorded
		if ev.CorrID != rec.CorrID {
			t.Errorf("expected playback end to share the segment's corr_id, got %s vs %s", ev.CorrID, rec.CorrID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected a full pipeline run from the loop")
	}
	shutdown(t, a)
	if a.Ready() {
		t.Error("expected not ready after shutdown")
	}
}

// gatedTranscriber blocks every call until release is closed.
type gatedTranscriber struct {
	entered chan struct{}
	release chan struct{}
}

func (g gatedTranscriber) Transcribe(ctx context.Context, req stt.Request) (models.Transcript, error) {
	close(g.entered)
	<-g.release
	return models.Transcript{Text: "tell me a joke"}, nil
}

func TestApplication_StopSilencesInFlightInteraction(t *testing.T) {
	gate := gatedTranscriber{entered: make(chan struct{}), release: make(chan struct{})}
	frames := make(chan audio.Frame)
	a, err := New(context.Background(), testConfig(config.ModeFull),
		WithPlayer(instantPlayer()),
		WithTranscriber(gate),
		WithFrameSource(audio.NewChannelSource(frames, nil)),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr := watchAll(t, a)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	frame := func(s []int16) audio.Frame { return audio.Frame{Samples: s, SampleRate: 16000} }
	for i := 0; i < 4; i++ {
		frames <- frame(speech(30 * time.Millisecond))
	}
	for i := 0; i < 4; i++ {
		frames <- frame(make([]int16, 480))
	}

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("expected the segment to reach the transcriber")
	}
	a.Loop.Stop()
	close(gate.release)
	shutdown(t, a)

	got := tr.byTopic()
	if len(got[models.TopicAudioRecorded]) != 1 {
		t.Fatalf("expected one recorded segment, got %d", len(got[models.TopicAudioRecorded]))
	}
	for _, topic := range []string{models.TopicTranscript, models.TopicTTSRequest, models.TopicPlaybackStart} {
		if n := len(got[topic]); n != 0 {
			t.Errorf("expected nothing on %s after stop, got %d", topic, n)
		}
	}
}

func TestApplication_ClientMode(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.ModeClient), WithPlayer(instantPlayer()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer shutdown(t, a)
	tr := watchAll(t, a)

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+push.PlayPath, strings.NewReader(string(audio.EncodeWAV(make([]int16, 1600), 16000))))
	req.Header.Set("Content-Type", audio.ContentTypeWAV)
	req.Header.Set(push.CorrelationHeader, "feedfacefeedfacefeedfacefeedface")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	start := tr.byTopic()[models.TopicPlaybackStart]
	if len(start) != 1 || start[0].CorrID != "feedfacefeedfacefeedfacefeedface" {
		t.Errorf("expected playback under the pushed corr_id, got %+v", start)
	}

	synth, _ := http.Post(srv.URL+"/api/tts/synthesize", "application/json", strings.NewReader(`{"text":"hi"}`))
	if synth != nil {
		synth.Body.Close()
		if synth.StatusCode != http.StatusNotFound {
			t.Errorf("expected no synthesize route in client mode, got %d", synth.StatusCode)
		}
	}
}

func TestApplication_ServerModeURLResponses(t *testing.T) {
	cfg := testConfig(config.ModeServer)
	cfg.TTS.ResponseMode = "url"
	a, err := New(context.Background(), cfg, WithPlayer(instantPlayer()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer shutdown(t, a)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tts/synthesize", strings.NewReader(`{"text":"hello fish"}`)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/tts/audio/") {
		t.Errorf("expected audio_url response, got %d %s", rec.Code, rec.Body)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*config.Config)
	}{
		{"unknown mode", func(c *config.Config) { c.Service.Mode = "sideways" }},
		{"unknown stt engine", func(c *config.Config) { c.STT.Engine = "parrot" }},
		{"unknown tts engine", func(c *config.Config) { c.TTS.Engine = "kazoo" }},
		{"openai without key", func(c *config.Config) { c.STT.Engine = EngineOpenAI }},
		{"missing audio input", func(c *config.Config) { c.Service.AudioInput = "/nonexistent/input.wav" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(config.ModeFull)
			tt.mut(cfg)
			if _, err := New(context.Background(), cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
