package skills

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
)

const (
	chatSystemPrompt = "You are a witty talking fish assistant who speaks only in rhymes. " +
		"Keep responses brief and conversational, under 50 words."
	chatFallback = "I'm not sure how to respond to that."
	chatOffline  = "Sorry, I'm having trouble connecting right now."
)

type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatConfig configures the chat skill.
type ChatConfig struct {
	APIKey  string
	BaseURL string // any OpenAI-compatible endpoint
	Model   string
}

// Chat answers free-form requests with an LLM. Failures are spoken, never
// returned.
type Chat struct {
	client completionClient
	model  string
	logger zerolog.Logger
}

// NewChat creates a Chat skill.
func NewChat(cfg ChatConfig) *Chat {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newChat(openai.NewClientWithConfig(oc), cfg.Model)
}

func newChat(c completionClient, model string) *Chat {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Chat{client: c, model: model, logger: logging.WithComponent("skill.chat")}
}

// Name implements Skill.
func (c *Chat) Name() string { return "chat" }

// Handle implements Skill.
func (c *Chat) Handle(ctx context.Context, req models.SkillRequest) (models.SkillResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return models.SkillResponse{Skill: c.Name()}, nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: chatSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   100,
		Temperature: 0.7,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("model", c.model).Msg("Chat completion failed")
		return models.SkillResponse{Skill: c.Name(), Utterance: chatOffline}, nil
	}

	say := ""
	if len(resp.Choices) > 0 {
		say = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if say == "" {
		say = chatFallback
	}
	return models.SkillResponse{Skill: c.Name(), Utterance: say}, nil
}
