// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fish_assistant"

// Metrics holds all Prometheus metrics for the runtime.
type Metrics struct {
	// Bus metrics
	BusPublishTotal    *prometheus.CounterVec
	BusHandlerFailures *prometheus.CounterVec
	BusPublishLatency  *prometheus.HistogramVec
	TasksActive        prometheus.Gauge
	TasksFailed        *prometheus.CounterVec

	// Segment metrics
	SegmentsCreated  prometheus.Counter
	SegmentsEmitted  prometheus.Counter
	SegmentsDropped  *prometheus.CounterVec
	SegmentQueue     prometheus.Gauge
	SegmentDuration  prometheus.Histogram
	PipelineDuration prometheus.Histogram

	// Audio metrics
	AudioFramesReceived prometheus.Counter
	AudioSamples        prometheus.Counter

	// Remote metrics
	RemoteAttempts *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec
	RemoteRetries  *prometheus.CounterVec

	// Stage metrics
	StageFailures *prometheus.CounterVec
	StageLatency  *prometheus.HistogramVec

	// Kafka mirror metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// HTTP / gRPC surface
	HTTPRequests *prometheus.CounterVec
	GRPCCalls    *prometheus.CounterVec

	// Backpressure metrics
	SegmentLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
// It registers with the default registry, so it may only be called once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		BusPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_total",
			Help:      "Total number of events published on the bus",
		}, []string{"topic"}),
		BusHandlerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_handler_failures_total",
			Help:      "Total number of subscriber handlers that failed or panicked",
		}, []string{"topic"}),
		BusPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_publish_latency_seconds",
			Help:      "Time from publish until every subscriber completed",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"topic"}),
		TasksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_active",
			Help:      "Number of detached background tasks in flight",
		}),
		TasksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Total number of detached tasks that failed or panicked",
		}, []string{"task"}),

		SegmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_created_total",
			Help:      "Total number of speech segments opened",
		}),
		SegmentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Total number of segments emitted into the pipeline",
		}),
		SegmentsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Total number of segments dropped",
		}, []string{"reason"}),
		SegmentQueue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segment_queue_depth",
			Help:      "Segments waiting for the in-flight pipeline run to finish",
		}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Audio duration of emitted segments",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time to run one segment through the pipeline",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames consumed by the conversation loop",
		}),
		AudioSamples: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_received_total",
			Help:      "Total PCM samples consumed by the conversation loop",
		}),

		RemoteAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_attempts_total",
			Help:      "Total outbound remote attempts by outcome",
		}, []string{"target", "op", "outcome"}),
		RemoteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_latency_seconds",
			Help:      "Latency of single outbound remote attempts",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"target", "op"}),
		RemoteRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_retries_total",
			Help:      "Total retries scheduled by remote adapters",
		}, []string{"target", "op"}),

		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total pipeline stage failures",
		}, []string{"stage", "kind"}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Processing latency per pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP API requests by route and status",
		}, []string{"route", "status"}),
		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total gRPC calls by method and code",
		}, []string{"method", "code"}),

		SegmentLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_limit_exceeded_total",
			Help:      "Total number of times segment limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordPublish records a completed bus publish.
func (m *Metrics) RecordPublish(topic string, failures int, latencySeconds float64) {
	m.BusPublishTotal.WithLabelValues(topic).Inc()
	m.BusPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if failures > 0 {
		m.BusHandlerFailures.WithLabelValues(topic).Add(float64(failures))
	}
}

// RecordTaskStart records a detached task starting.
func (m *Metrics) RecordTaskStart() {
	m.TasksActive.Inc()
}

// RecordTaskEnd records a detached task finishing.
func (m *Metrics) RecordTaskEnd(task string, err error) {
	m.TasksActive.Dec()
	if err != nil {
		m.TasksFailed.WithLabelValues(task).Inc()
	}
}

// RecordSegmentCreated records speech onset.
func (m *Metrics) RecordSegmentCreated() {
	m.SegmentsCreated.Inc()
}

// RecordSegmentEmitted records a segment handed to the pipeline.
func (m *Metrics) RecordSegmentEmitted(durationSeconds float64) {
	m.SegmentsEmitted.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentDropped records a segment being dropped.
func (m *Metrics) RecordSegmentDropped(reason string) {
	m.SegmentsDropped.WithLabelValues(reason).Inc()
}

// SetSegmentQueue records the pending segment queue depth.
func (m *Metrics) SetSegmentQueue(depth int) {
	m.SegmentQueue.Set(float64(depth))
}

// RecordPipelineRun records one completed pipeline run.
func (m *Metrics) RecordPipelineRun(durationSeconds float64) {
	m.PipelineDuration.Observe(durationSeconds)
}

// RecordAudioReceived records a consumed audio frame.
func (m *Metrics) RecordAudioReceived(samples int) {
	m.AudioSamples.Add(float64(samples))
	m.AudioFramesReceived.Inc()
}

// RecordRemoteAttempt records one outbound remote attempt.
func (m *Metrics) RecordRemoteAttempt(target, op, outcome string, latencySeconds float64) {
	m.RemoteAttempts.WithLabelValues(target, op, outcome).Inc()
	m.RemoteLatency.WithLabelValues(target, op).Observe(latencySeconds)
}

// RecordRemoteRetry records a scheduled retry.
func (m *Metrics) RecordRemoteRetry(target, op string) {
	m.RemoteRetries.WithLabelValues(target, op).Inc()
}

// RecordStage records a stage invocation and its failure kind, if any.
func (m *Metrics) RecordStage(stage, failureKind string, latencySeconds float64) {
	m.StageLatency.WithLabelValues(stage).Observe(latencySeconds)
	if failureKind != "" {
		m.StageFailures.WithLabelValues(stage, failureKind).Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records an HTTP API request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

// RecordGRPCCall records a gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}

// RecordLimitExceeded records when a segment limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.SegmentLimitExceeded.WithLabelValues(limitType).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
