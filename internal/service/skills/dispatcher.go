package skills

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/service/stage"
)

const stageName = "skills"

// Dispatcher subscribes to skill.request, runs the named skill, and publishes
// skill.response.
type Dispatcher struct {
	registry *Registry
	bus      *bus.Bus
	logger   zerolog.Logger
}

// NewDispatcher creates the skill stage.
func NewDispatcher(r *Registry, b *bus.Bus) *Dispatcher {
	return &Dispatcher{
		registry: r,
		bus:      b,
		logger:   logging.WithComponent("stage.skills"),
	}
}

// Attach subscribes the dispatcher to the bus.
func (d *Dispatcher) Attach() error {
	return d.bus.Subscribe(models.TopicSkillRequest, d.handle, bus.WithName(stageName))
}

func (d *Dispatcher) handle(ctx context.Context, ev models.Event) error {
	req, err := models.PayloadAs[models.SkillRequest](ev)
	if err != nil {
		return stage.Fail(ctx, d.bus, ev, stageName, err)
	}

	skill, err := d.registry.Lookup(req.Skill)
	if err != nil {
		return stage.Fail(ctx, d.bus, ev, stageName, err)
	}

	start := time.Now()
	resp, err := skill.Handle(ctx, req)
	if err != nil {
		return stage.Fail(ctx, d.bus, ev, stageName, err)
	}
	stage.Observe(stageName, start)

	d.logger.Info().
		Str("corrId", ev.CorrID).
		Str("requested", req.Skill).
		Str("skill", skill.Name()).
		Str("say", resp.Utterance).
		Msg("Skill answered")

	return d.bus.Publish(ctx, models.Derive(ev, models.TopicSkillResponse, resp))
}
