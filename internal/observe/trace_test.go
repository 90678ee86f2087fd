package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs a synchronous in-memory tracer as the global provider
// for the duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestWithUtterance(t *testing.T) {
	ctx := context.Background()
	if got := UtteranceID(ctx); got != "" {
		t.Errorf("UtteranceID(background) = %q", got)
	}
	if WithUtterance(ctx, "") != ctx {
		t.Error("empty id should leave ctx untouched")
	}
	if got := UtteranceID(WithUtterance(ctx, "u-1")); got != "u-1" {
		t.Errorf("UtteranceID = %q, want u-1", got)
	}
}

func TestStartSpan_TagsUtterance(t *testing.T) {
	exp := useTracer(t)

	ctx := WithUtterance(context.Background(), "u-42")
	ctx, span := StartSpan(ctx, "transcribe")
	if CorrelationID(ctx) == "" {
		t.Error("span has no trace ID")
	}
	span.End()

	_, plain := StartSpan(context.Background(), "dispatch")
	plain.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	attr := func(s tracetest.SpanStub) string {
		for _, kv := range s.Attributes {
			if kv.Key == "utterance.id" {
				return kv.Value.AsString()
			}
		}
		return ""
	}
	if spans[0].Name != "transcribe" || attr(spans[0]) != "u-42" {
		t.Errorf("span %q utterance.id = %q, want u-42", spans[0].Name, attr(spans[0]))
	}
	if attr(spans[1]) != "" {
		t.Errorf("untagged span got utterance.id %q", attr(spans[1]))
	}
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)
	buf := captureLogs(t, slog.LevelInfo)

	Logger(context.Background()).Info("bare")
	ctx, span := StartSpan(WithUtterance(context.Background(), "u-7"), "dispatch")
	Logger(ctx).Info("tagged")
	span.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2: %q", len(lines), buf.String())
	}
	if strings.Contains(lines[0], "trace_id") || strings.Contains(lines[0], "utterance") {
		t.Errorf("bare logger carries context attributes: %s", lines[0])
	}
	for _, want := range []string{"utterance=u-7", "trace_id=", "span_id="} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("tagged log line missing %q: %s", want, lines[1])
		}
	}
}
