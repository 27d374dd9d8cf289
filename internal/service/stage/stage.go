// Package stage holds what every pipeline stage does the same way: timing,
// and turning a failure into events instead of an error that crosses the bus.
package stage

import (
	"context"
	"time"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
)

// Fail reports that stage gave up on the interaction parent belongs to. It
// publishes pipeline.failed and ux.state{error}, both derived from parent.
// The returned error is only non-nil if those publishes themselves failed.
func Fail(ctx context.Context, b *bus.Bus, parent models.Event, stage string, err error) error {
	kind := faults.Kind(err)
	metrics.DefaultMetrics.RecordStage(stage, kind, 0)

	logger := logging.WithCorrelation(parent.CorrID)
	logger.Error().
		Err(err).
		Str("stage", stage).
		Str("kind", kind).
		Str("topic", parent.Topic).
		Msg("Stage failed")

	if perr := b.Publish(ctx, models.Derive(parent, models.TopicPipelineFailed, models.StageFailure{
		Stage: stage,
		Kind:  kind,
		Error: err.Error(),
	})); perr != nil {
		return perr
	}
	return b.Publish(ctx, models.Derive(parent, models.TopicUXState, models.UXState{State: models.UXError, Note: stage}))
}

// Observe records the latency of a successful stage invocation.
func Observe(stage string, start time.Time) {
	metrics.DefaultMetrics.RecordStage(stage, "", time.Since(start).Seconds())
}

// UX publishes a ux.state transition derived from parent. Failures are logged;
// UX hints never fail a stage.
func UX(ctx context.Context, b *bus.Bus, parent models.Event, state string) {
	if err := b.Publish(ctx, models.Derive(parent, models.TopicUXState, models.UXState{State: state})); err != nil {
		logger := logging.WithCorrelation(parent.CorrID)
		logger.Warn().Err(err).Str("state", state).Msg("UX state publish failed")
	}
}
