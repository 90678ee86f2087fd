// Package observe provides observability primitives for wakepipe:
// OpenTelemetry metrics, tracing, trace-correlated logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Setup]
// bridges them to a Prometheus registry served on /metrics. [DefaultMetrics]
// binds the instruments to the global meter provider; tests build their own
// with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all wakepipe metrics.
const meterName = "github.com/MrWong99/wakepipe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TranscriptionDuration tracks engine latency. Attributes: engine, outcome.
	TranscriptionDuration metric.Float64Histogram

	// CaptureDuration tracks the amount of audio per forwarded utterance.
	// Attribute: outcome.
	CaptureDuration metric.Float64Histogram

	// ActionDuration tracks how long a dispatched command took. Attribute: mode.
	ActionDuration metric.Float64Histogram

	// StateTransitions counts orchestrator transitions. Attributes: from, to.
	StateTransitions metric.Int64Counter

	// Detections counts wake-word detections. Attribute: result
	// (accepted|dropped).
	Detections metric.Int64Counter

	// FramesDropped counts frames evicted from the audio ring.
	FramesDropped metric.Int64Counter

	// Commands counts routed commands. Attributes: mode, validation.
	Commands metric.Int64Counter

	// ActionFailures counts failed or timed-out actions. Attributes: mode,
	// reason.
	ActionFailures metric.Int64Counter

	// EngineErrors counts transcription engine failures. Attribute: engine.
	EngineErrors metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// transcription and action latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("wakepipe.transcription.duration",
		metric.WithDescription("Latency of a transcription engine call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("wakepipe.capture.duration",
		metric.WithDescription("Captured audio per forwarded utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActionDuration, err = m.Float64Histogram("wakepipe.action.duration",
		metric.WithDescription("Latency of command dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.StateTransitions, err = m.Int64Counter("wakepipe.pipeline.transitions",
		metric.WithDescription("Pipeline state transitions by source and target state."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("wakepipe.wake.detections",
		metric.WithDescription("Wake-word detections by result."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("wakepipe.audio.frames_dropped",
		metric.WithDescription("Audio frames dropped because the consumer fell behind."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("wakepipe.commands",
		metric.WithDescription("Routed commands by mode and validation outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActionFailures, err = m.Int64Counter("wakepipe.action.failures",
		metric.WithDescription("Failed or stalled actions by mode and reason."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("wakepipe.transcription.errors",
		metric.WithDescription("Transcription engine errors by engine."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("wakepipe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTransition counts one orchestrator state transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordDetection counts one wake-word detection. accepted is false for
// detections dropped outside the listening state.
func (m *Metrics) RecordDetection(ctx context.Context, accepted bool) {
	result := "dropped"
	if accepted {
		result = "accepted"
	}
	m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordFramesDropped adds n to the dropped-frame counter.
func (m *Metrics) RecordFramesDropped(ctx context.Context, n uint64) {
	if n == 0 {
		return
	}
	m.FramesDropped.Add(ctx, int64(n))
}

// RecordTranscription records the latency of one engine call.
func (m *Metrics) RecordTranscription(ctx context.Context, engine, outcome string, d time.Duration) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("outcome", outcome),
		),
	)
	if outcome == "engine-error" {
		m.EngineErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
}

// RecordCapture records the duration of a forwarded utterance.
func (m *Metrics) RecordCapture(ctx context.Context, outcome string, d time.Duration) {
	m.CaptureDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordCommand counts one routed command.
func (m *Metrics) RecordCommand(ctx context.Context, mode, validation string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("validation", validation),
		),
	)
}

// RecordAction records a dispatched command's latency and, when reason is
// non-empty, a failure.
func (m *Metrics) RecordAction(ctx context.Context, mode, reason string, d time.Duration) {
	m.ActionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
	if reason != "" {
		m.ActionFailures.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("mode", mode),
				attribute.String("reason", reason),
			),
		)
	}
}
