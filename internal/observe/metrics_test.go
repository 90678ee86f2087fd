package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of an int64 sum whose attributes include
// every key/value in want.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordTranscription(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscription(ctx, "whisper", "ok", 300*time.Millisecond)
	m.RecordTranscription(ctx, "whisper", "engine-error", 2*time.Second)

	rm := collect(t, reader)
	met := findMetric(rm, "wakepipe.transcription.duration")
	if met == nil {
		t.Fatal("transcription histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("transcription duration is not a histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("sample count = %d, want 2", count)
	}
	if got := counterValue(t, rm, "wakepipe.transcription.errors", Attr("engine", "whisper")); got != 1 {
		t.Errorf("engine errors = %d, want 1", got)
	}
}

func TestRecordTransitionAndDetection(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "listening", "capturing")
	m.RecordTransition(ctx, "listening", "capturing")
	m.RecordTransition(ctx, "capturing", "transcribing")
	m.RecordDetection(ctx, true)
	m.RecordDetection(ctx, false)
	m.RecordDetection(ctx, false)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "wakepipe.pipeline.transitions", Attr("from", "listening"), Attr("to", "capturing")); got != 2 {
		t.Errorf("listening->capturing = %d, want 2", got)
	}
	if got := counterValue(t, rm, "wakepipe.wake.detections", Attr("result", "dropped")); got != 2 {
		t.Errorf("dropped detections = %d, want 2", got)
	}
	if got := counterValue(t, rm, "wakepipe.wake.detections", Attr("result", "accepted")); got != 1 {
		t.Errorf("accepted detections = %d, want 1", got)
	}
}

func TestRecordCommandAndAction(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCommand(ctx, "execute", "ok")
	m.RecordCommand(ctx, "execute", "unrecognized-command")
	m.RecordAction(ctx, "execute", "", 10*time.Millisecond)
	m.RecordAction(ctx, "execute", "timeout", 5*time.Second)
	m.RecordFramesDropped(ctx, 0)
	m.RecordFramesDropped(ctx, 7)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "wakepipe.commands", Attr("validation", "unrecognized-command")); got != 1 {
		t.Errorf("unrecognized commands = %d, want 1", got)
	}
	if got := counterValue(t, rm, "wakepipe.action.failures", Attr("reason", "timeout")); got != 1 {
		t.Errorf("action timeouts = %d, want 1", got)
	}
	if got := counterValue(t, rm, "wakepipe.audio.frames_dropped"); got != 7 {
		t.Errorf("frames dropped = %d, want 7", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
