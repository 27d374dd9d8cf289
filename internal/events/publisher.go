// Package events mirrors bus traffic to Kafka for offline inspection.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
	"fish-assistant/internal/schema"
)

// Header keys set on every mirrored message.
const (
	HeaderTopic     = "eventType"
	HeaderPrincipal = "principal"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror writes every bus event to one Kafka topic, keyed by corr_id so that
// an interaction's events share a partition. Each export runs on its own
// supervised goroutine, so consumers order an interaction's events by ts_ms,
// not by offset. With Kafka disabled it only logs topic and corr_id.
type Mirror struct {
	writer    messageWriter
	validator *schema.Validator
	principal string
	topic     string
	enabled   bool
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Config holds Kafka mirror configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// New creates a mirror. A nil config, Enabled=false, or an empty broker list
// selects log-only mode.
func New(cfg *Config, validator *schema.Validator) *Mirror {
	m := &Mirror{
		validator: validator,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("events"),
	}
	if cfg == nil {
		m.logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return m
	}
	m.principal = cfg.Principal
	m.topic = cfg.Topic

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		m.logger.Info().Msg("Kafka disabled, using log-only mode")
		return m
	}

	// Longer dial timeout for DNS resolution inside Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	m.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	m.enabled = true

	m.logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka mirror initialized")
	return m
}

// Enabled reports whether events are written to Kafka.
func (m *Mirror) Enabled() bool { return m.enabled }

// Export implements bus.Mirror.
func (m *Mirror) Export(ctx context.Context, ev models.Event) error {
	if !m.enabled || m.writer == nil {
		m.logger.Debug().
			Str("topic", ev.Topic).
			Str("corrId", ev.CorrID).
			Msg("Event seen (log-only)")
		return nil
	}
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error().Err(err).Str("topic", ev.Topic).Msg("Failed to marshal event")
		return fmt.Errorf("marshal %s: %w", ev.Topic, err)
	}
	if m.validator != nil {
		if err := m.validator.ValidateEnvelope(payload); err != nil {
			m.logger.Warn().Err(err).Str("topic", ev.Topic).Str("corrId", ev.CorrID).Msg("Event failed validation, not mirrored")
			m.metrics.RecordKafkaPublish(m.topic, ev.Topic, err, time.Since(start).Seconds())
			return err
		}
	}

	m.logger.Debug().
		Str("principal", m.principal).
		Str("topic", ev.Topic).
		Str("corrId", ev.CorrID).
		RawJSON("event", payload).
		Msg("Mirroring event")

	msg := kafka.Message{
		Key:   []byte(ev.CorrID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderTopic, Value: []byte(ev.Topic)},
			{Key: HeaderPrincipal, Value: []byte(m.principal)},
		},
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		m.logger.Error().
			Err(err).
			Str("topic", ev.Topic).
			Str("corrId", ev.CorrID).
			Msg("Failed to write to Kafka")
		m.metrics.RecordKafkaPublish(m.topic, ev.Topic, err, time.Since(start).Seconds())
		return err
	}

	m.metrics.RecordKafkaPublish(m.topic, ev.Topic, nil, time.Since(start).Seconds())
	return nil
}

// Close flushes and closes the writer.
func (m *Mirror) Close() error {
	if m.writer == nil {
		return nil
	}
	if err := m.writer.Close(); err != nil {
		m.logger.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}
