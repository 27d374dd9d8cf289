// Package router maps classified intents to skill requests and skill
// responses to synthesis requests.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
)

// Router holds the intent override table. Intents without an override route
// to the skill of the same name.
type Router struct {
	mu        sync.RWMutex
	overrides map[string]string
	voice     string
	logger    zerolog.Logger
}

// New creates a Router. voice is passed through on every synthesis request
// and may be empty.
func New(voice string) *Router {
	return &Router{
		overrides: make(map[string]string),
		voice:     voice,
		logger:    logging.WithComponent("router"),
	}
}

// RegisterIntent redirects intent name to skill. A later call for the same
// name replaces the earlier one.
func (r *Router) RegisterIntent(name, skill string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = skill
}

// SkillFor returns the skill an intent routes to.
func (r *Router) SkillFor(intent string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if skill, ok := r.overrides[intent]; ok {
		return skill
	}
	return intent
}

// RouteIntent turns an nlu.intent event into a skill.request event.
func (r *Router) RouteIntent(ev models.Event) (models.Event, error) {
	intent, err := models.PayloadAs[models.Intent](ev)
	if err != nil {
		return models.Event{}, err
	}
	return models.Derive(ev, models.TopicSkillRequest, models.SkillRequest{
		Skill:    r.SkillFor(intent.Name),
		Intent:   intent.Name,
		Entities: intent.Entities,
		Text:     intent.Text,
	}), nil
}

// RouteResponse turns a skill.response event into a tts.request event.
func (r *Router) RouteResponse(ev models.Event) (models.Event, error) {
	resp, err := models.PayloadAs[models.SkillResponse](ev)
	if err != nil {
		return models.Event{}, err
	}
	return models.Derive(ev, models.TopicTTSRequest, models.TTSRequest{
		Text:  resp.Utterance,
		Voice: r.voice,
	}), nil
}

// Attach subscribes the router to the bus.
func (r *Router) Attach(b *bus.Bus) error {
	if err := b.Subscribe(models.TopicIntent, r.forward(b, r.RouteIntent), bus.WithName("router.intent")); err != nil {
		return err
	}
	return b.Subscribe(models.TopicSkillResponse, r.forward(b, r.RouteResponse), bus.WithName("router.response"))
}

func (r *Router) forward(b *bus.Bus, route func(models.Event) (models.Event, error)) bus.Handler {
	return func(ctx context.Context, ev models.Event) error {
		out, err := route(ev)
		if err != nil {
			return fmt.Errorf("route %s: %w", ev.Topic, err)
		}
		r.logger.Debug().
			Str("corrId", ev.CorrID).
			Str("from", ev.Topic).
			Str("to", out.Topic).
			Msg("Routed")
		return b.Publish(ctx, out)
	}
}
