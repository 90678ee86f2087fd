package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/wakepipe"

type utteranceKey struct{}

// Tracer returns the wakepipe tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// WithUtterance tags ctx with the utterance being processed. Spans started
// with [StartSpan] and loggers from [Logger] carry the ID.
func WithUtterance(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, utteranceKey{}, id)
}

// UtteranceID returns the ID set by [WithUtterance], or "".
func UtteranceID(ctx context.Context) string {
	id, _ := ctx.Value(utteranceKey{}).(string)
	return id
}

// StartSpan starts a span named name. When ctx carries an utterance the span
// gets an utterance.id attribute. The caller must end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := UtteranceID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("utterance.id", id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the utterance ID and the trace and
// span IDs found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := UtteranceID(ctx); id != "" {
		l = l.With(slog.String("utterance", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
