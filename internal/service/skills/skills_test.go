package skills

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/models"
)

func TestRegistry_LookupFallsBack(t *testing.T) {
	r := NewRegistry(Echo(), Unknown())

	s, err := r.Lookup("echo")
	if err != nil || s.Name() != "echo" {
		t.Fatalf("expected echo, got %v (%v)", s, err)
	}
	s, err = r.Lookup("teleport")
	if err != nil || s.Name() != FallbackSkill {
		t.Fatalf("expected fallback, got %v (%v)", s, err)
	}

	if _, err := NewRegistry(Echo()).Lookup("teleport"); err == nil {
		t.Error("expected error without a fallback")
	}
}

func TestBuiltins(t *testing.T) {
	noon := func() time.Time { return time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC) }
	tests := []struct {
		skill Skill
		text  string
		want  string
	}{
		{Echo(), " hello fish ", "You said: hello fish"},
		{Time(noon), "what time is it", "It's 3:04 PM."},
		{Joke(), "tell me a joke", jokes[0]},
		{Smalltalk(), "thanks fish", "You're welcome, it's my porpoise."},
		{Smalltalk(), "bye", "Goodbye! Keep swimming."},
		{Smalltalk(), "hello", "Hello there! What can this fish do for you?"},
		{Unknown(), "blorp", "Sorry, I didn't catch that."},
	}
	for _, tt := range tests {
		t.Run(tt.skill.Name()+"/"+tt.text, func(t *testing.T) {
			resp, err := tt.skill.Handle(context.Background(), models.SkillRequest{Skill: tt.skill.Name(), Text: tt.text})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Utterance != tt.want {
				t.Errorf("expected %q, got %q", tt.want, resp.Utterance)
			}
			if resp.Skill != tt.skill.Name() {
				t.Errorf("expected skill %s, got %s", tt.skill.Name(), resp.Skill)
			}
		})
	}
}

func TestJoke_Rotates(t *testing.T) {
	j := Joke()
	first, _ := j.Handle(context.Background(), models.SkillRequest{})
	second, _ := j.Handle(context.Background(), models.SkillRequest{})
	if first.Utterance == second.Utterance {
		t.Error("expected consecutive jokes to differ")
	}
}

func TestTimer(t *testing.T) {
	fired := make(chan string, 1)
	tm := NewTimer(func(say string) { fired <- say })
	defer tm.Stop()

	tests := []struct {
		name     string
		entities map[string]any
		want     string
	}{
		{"int seconds", map[string]any{"duration": map[string]any{"seconds": 5400}}, "Timer set for 1 hour 30 minutes."},
		{"float seconds", map[string]any{"duration": map[string]any{"seconds": 300.0}}, "Timer set for 5 minutes."},
		{"missing", map[string]any{}, "How long should the timer be?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tm.Handle(context.Background(), models.SkillRequest{Entities: tt.entities})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Utterance != tt.want {
				t.Errorf("expected %q, got %q", tt.want, resp.Utterance)
			}
		})
	}
	if tm.Pending() != 2 {
		t.Errorf("expected 2 pending timers, got %d", tm.Pending())
	}
	tm.Stop()
	if tm.Pending() != 0 {
		t.Errorf("expected no pending timers after stop, got %d", tm.Pending())
	}

	_, _ = tm.Handle(context.Background(), models.SkillRequest{Entities: map[string]any{"duration": map[string]any{"seconds": 1}}})
	select {
	case say := <-fired:
		if say != "Your 1 second timer is done." {
			t.Errorf("unexpected announcement %q", say)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not fire")
	}
}

type fakeCompletion struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeCompletion) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
	}}
}

func TestChat(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeCompletion
		want string
	}{
		{"answers", &fakeCompletion{resp: completion("  A fish with a wish!  ")}, "A fish with a wish!"},
		{"empty answer", &fakeCompletion{resp: completion("")}, chatFallback},
		{"no choices", &fakeCompletion{}, chatFallback},
		{"api error", &fakeCompletion{err: errors.New("401")}, chatOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChat(tt.fake, "llama-3.1-8b-instant")
			resp, err := c.Handle(context.Background(), models.SkillRequest{Text: "how are you"})
			if err != nil {
				t.Fatalf("expected failures to be spoken, got %v", err)
			}
			if resp.Utterance != tt.want {
				t.Errorf("expected %q, got %q", tt.want, resp.Utterance)
			}
			if tt.fake.req.MaxTokens != 100 || tt.fake.req.Model != "llama-3.1-8b-instant" {
				t.Errorf("unexpected request %+v", tt.fake.req)
			}
			if len(tt.fake.req.Messages) != 2 || tt.fake.req.Messages[0].Role != openai.ChatMessageRoleSystem {
				t.Errorf("expected system and user messages, got %+v", tt.fake.req.Messages)
			}
		})
	}
}

func TestDispatcher(t *testing.T) {
	b := bus.New()
	var got []models.Event
	_ = b.Subscribe(models.TopicSkillResponse, func(ctx context.Context, ev models.Event) error {
		got = append(got, ev)
		return nil
	})
	if err := NewDispatcher(NewRegistry(Echo(), Unknown()), b).Attach(); err != nil {
		t.Fatalf("attach: %v", err)
	}

	ev := models.New(models.TopicSkillRequest, models.SkillRequest{Skill: "echo", Text: "hello fish"})
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = b.Publish(context.Background(), models.New(models.TopicSkillRequest, models.SkillRequest{Skill: "weather"}))

	if len(got) != 2 {
		t.Fatalf("expected two responses, got %d", len(got))
	}
	first, _ := models.PayloadAs[models.SkillResponse](got[0])
	if first.Utterance != "You said: hello fish" || got[0].CorrID != ev.CorrID {
		t.Errorf("unexpected first response %+v", got[0])
	}
	second, _ := models.PayloadAs[models.SkillResponse](got[1])
	if second.Skill != FallbackSkill {
		t.Errorf("expected fallback for unregistered skill, got %s", second.Skill)
	}
}
