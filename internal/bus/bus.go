// Package bus implements the in-process publish/subscribe broker that
// sequences pipeline stages.
//
// Publish runs every subscriber of a topic concurrently and returns only once
// all of them have completed or failed. Stages rely on this: when Publish
// returns, everything the event caused synchronously has happened. Handlers
// with long-running work hand it to the Supervisor and publish their own
// completion event later.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fish-assistant/internal/models"
	"fish-assistant/internal/observability"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
)

// ErrInvalidTopic is returned for an empty topic.
var ErrInvalidTopic = errors.New("invalid topic")

// ErrHandlerPanic wraps a recovered handler panic.
var ErrHandlerPanic = errors.New("handler panicked")

// Handler processes one event.
type Handler func(ctx context.Context, ev models.Event) error

// Mirror receives a copy of every published event, off the publish path.
type Mirror interface {
	Export(ctx context.Context, ev models.Event) error
}

type subscription struct {
	name    string
	handler Handler
}

// Bus is the publish/subscribe broker. The zero value is not usable; use New.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]subscription

	supervisor *Supervisor
	mirror     Mirror
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMirror exports every published event to m as supervised background work.
func WithMirror(m Mirror) Option {
	return func(b *Bus) { b.mirror = m }
}

// WithSupervisor sets the supervisor used for detached work.
func WithSupervisor(s *Supervisor) Option {
	return func(b *Bus) { b.supervisor = s }
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[string][]subscription),
		metrics: metrics.DefaultMetrics,
		tracer:  observability.Tracer(),
		logger:  logging.WithComponent("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.supervisor == nil {
		b.supervisor = NewSupervisor()
	}
	return b
}

// Supervisor returns the supervisor that tracks detached work for this bus.
func (b *Bus) Supervisor() *Supervisor {
	return b.supervisor
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithName labels the handler in failure reports and logs.
func WithName(name string) SubscribeOption {
	return func(s *subscription) { s.name = name }
}

// Subscribe registers h for topic. It is safe to call at any time, including
// from inside a handler; the new handler sees publishes that start afterwards.
func (b *Bus) Subscribe(topic string, h Handler, opts ...SubscribeOption) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if h == nil {
		return fmt.Errorf("subscribe %s: nil handler", topic)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := subscription{handler: h}
	for _, opt := range opts {
		opt(&s)
	}
	if s.name == "" {
		s.name = fmt.Sprintf("%s#%d", topic, len(b.subs[topic]))
	}
	b.subs[topic] = append(b.subs[topic], s)

	b.logger.Debug().Str("topic", topic).Str("handler", s.name).Msg("Subscribed")
	return nil
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Publish delivers ev to every current subscriber of ev.Topic concurrently and
// waits for all of them. A failing or panicking handler never cancels its
// siblings; all failures are returned together as a *PublishError. Under a
// halted context (see WithHalt) the event is dropped and Publish returns nil.
func (b *Bus) Publish(ctx context.Context, ev models.Event) error {
	if ev.Topic == "" {
		return ErrInvalidTopic
	}
	if Halted(ctx) {
		b.logger.Info().
			Str("topic", ev.Topic).
			Str("corrId", ev.CorrID).
			Msg("Interaction halted, event dropped")
		return nil
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()

	ctx, span := b.tracer.Start(ctx, "bus.publish "+ev.Topic, trace.WithAttributes(
		attribute.String("corr_id", ev.CorrID),
		attribute.Int("subscribers", len(subs)),
	))
	defer span.End()

	start := time.Now()

	if b.mirror != nil {
		err := b.supervisor.Go(ctx, "mirror", ev.CorrID, func(ctx context.Context) error {
			return b.mirror.Export(ctx, ev)
		})
		if err != nil {
			b.logger.Warn().Err(err).Str("topic", ev.Topic).Msg("Mirror export skipped")
		}
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, s := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = invoke(ctx, s.handler, ev)
		}()
	}
	wg.Wait()

	var failures []HandlerFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, HandlerFailure{Handler: subs[i].name, Err: err})
		}
	}

	b.metrics.RecordPublish(ev.Topic, len(failures), time.Since(start).Seconds())

	if len(failures) == 0 {
		return nil
	}

	perr := &PublishError{Topic: ev.Topic, CorrID: ev.CorrID, Failures: failures}
	span.RecordError(perr)
	span.SetStatus(codes.Error, "handler failure")
	b.logger.Warn().
		Str("topic", ev.Topic).
		Str("corrId", ev.CorrID).
		Int("failed", len(failures)).
		Int("subscribers", len(subs)).
		Err(perr).
		Msg("Subscribers failed")
	return perr
}

func invoke(ctx context.Context, h Handler, ev models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, ev)
}
