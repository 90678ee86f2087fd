package observe

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// exchange records what the downstream handler did with the response. The
// status stream upgrades to a WebSocket, so Hijack and Flush pass through.
type exchange struct {
	http.ResponseWriter
	code     int
	written  int64
	upgraded bool
}

func (x *exchange) WriteHeader(code int) {
	x.code = code
	x.ResponseWriter.WriteHeader(code)
}

func (x *exchange) Write(p []byte) (int, error) {
	n, err := x.ResponseWriter.Write(p)
	x.written += int64(n)
	return n, err
}

func (x *exchange) Unwrap() http.ResponseWriter { return x.ResponseWriter }

func (x *exchange) Flush() {
	if f, ok := x.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (x *exchange) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := x.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observe: connection cannot be hijacked")
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, nil, err
	}
	x.upgraded = true
	x.code = http.StatusSwitchingProtocols
	return conn, rw, nil
}

// pollPaths are hit by scrapers and status pollers.
var pollPaths = map[string]bool{
	"/metrics":     true,
	"/healthz":     true,
	"/readyz":      true,
	"/status.json": true,
}

// Middleware wraps the control surface. Each request joins the caller's W3C
// trace, gets a server span and an X-Correlation-ID header, and is measured in
// [Metrics.HTTPRequestDuration]. Completions log at info except on
// pollPaths, which log at debug.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path

			ctx, span := StartSpan(
				prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header)),
				"HTTP "+r.Method+" "+path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(path)),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			x := &exchange{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(x, r.WithContext(ctx))
			elapsed := time.Since(start)

			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", path),
			))
			span.SetAttributes(semconv.HTTPResponseStatusCode(x.code))

			level := slog.LevelInfo
			if pollPaths[path] {
				level = slog.LevelDebug
			}
			slog.LogAttrs(ctx, level, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", x.code),
				slog.Int64("bytes", x.written),
				slog.Bool("hijacked", x.upgraded),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
