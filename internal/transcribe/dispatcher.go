// Package transcribe turns a captured utterance into a tagged [Result] by
// submitting it to an [stt.Engine].
//
// The [Dispatcher] is the only place that talks to the engine. It enforces a
// per-call timeout, guards the engine with a circuit breaker, and keeps engine
// failures apart from calls that merely heard nothing:
//
//   - ok: text recognized with sufficient confidence
//   - empty: no audio, too little speech, no text, or low confidence
//   - engine-error: the engine failed, timed out, or the breaker is open
//
// Failed calls are never retried; a misfire needs a fresh wake trigger.
package transcribe

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/wakepipe/internal/capture"
	"github.com/MrWong99/wakepipe/internal/observe"
	"github.com/MrWong99/wakepipe/internal/resilience"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
)

// Settings is the dispatcher's slice of the pipeline configuration.
type Settings struct {
	ModelID  string
	Language string
	Prompt   string

	// Timeout bounds one engine call. Zero means no dispatcher timeout.
	Timeout time.Duration

	// MinConfidence turns results below it into empty ones.
	MinConfidence float64

	Overrides *Overrides
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(d *Dispatcher) { d.breaker = cb }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher submits utterances to the engine. It is safe for concurrent use,
// though the pipeline only ever has one call in flight.
type Dispatcher struct {
	engine   stt.Engine
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
	settings atomic.Pointer[Settings]
}

// New returns a dispatcher for engine.
func New(engine stt.Engine, s Settings, opts ...Option) *Dispatcher {
	d := &Dispatcher{engine: engine}
	for _, o := range opts {
		o(d)
	}
	if d.breaker == nil {
		d.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "stt:" + engine.Name()})
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	d.Apply(s)
	return d
}

// Apply replaces the settings used by subsequent calls.
func (d *Dispatcher) Apply(s Settings) { d.settings.Store(&s) }

// Breaker exposes the engine circuit breaker for health checks.
func (d *Dispatcher) Breaker() *resilience.CircuitBreaker { return d.breaker }

// Engine returns the wrapped engine.
func (d *Dispatcher) Engine() stt.Engine { return d.engine }

// Transcribe submits u and classifies the answer. It blocks for the duration
// of the engine call and never returns a nil-outcome result.
func (d *Dispatcher) Transcribe(ctx context.Context, u *capture.Utterance) Result {
	s := d.settings.Load()
	if u == nil {
		return Result{Outcome: OutcomeEmpty, Reason: "no utterance"}
	}
	res := Result{UtteranceID: u.ID, Audio: u.Duration()}
	switch {
	case u.Empty():
		return empty(res, "no audio")
	case u.TooShort:
		return empty(res, "too little speech")
	}

	ctx = observe.WithUtterance(ctx, u.ID)
	ctx, span := observe.StartSpan(ctx, "transcribe",
		trace.WithAttributes(
			attribute.String("stt.engine", d.engine.Name()),
			attribute.Float64("audio.seconds", res.Audio.Seconds()),
		),
	)
	defer span.End()
	log := observe.Logger(ctx).With("engine", d.engine.Name())

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req := stt.Request{
		Audio:      u.PCM(),
		SampleRate: u.SampleRate,
		ModelID:    s.ModelID,
		Language:   s.Language,
		Prompt:     s.Prompt,
	}
	var out stt.Result
	start := time.Now()
	err := d.breaker.Execute(func() error {
		var err error
		out, err = d.engine.Transcribe(callCtx, req)
		return err
	})
	res.Latency = time.Since(start)

	if err != nil {
		res.Outcome = OutcomeEngineError
		res.Err = &EngineError{Engine: d.engine.Name(), Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine error")
		d.metrics.RecordTranscription(ctx, d.engine.Name(), res.Outcome.String(), res.Latency)
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			log.Warn("transcribe: engine circuit open, skipping call")
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("transcribe: engine timed out", "timeout", s.Timeout, "latency", res.Latency)
		default:
			log.Error("transcribe: engine failed", "latency", res.Latency, "err", err)
		}
		return res
	}

	res.Text = s.Overrides.Apply(out.Text)
	res.Confidence = out.Confidence
	switch {
	case strings.TrimSpace(res.Text) == "":
		res = empty(res, "no text")
	case s.MinConfidence > 0 && res.Confidence < s.MinConfidence:
		log.Debug("transcribe: low confidence", "confidence", res.Confidence, "min", s.MinConfidence)
		res = empty(res, "low confidence")
	default:
		res.Outcome = OutcomeOK
	}
	span.SetAttributes(attribute.String("transcribe.outcome", res.Outcome.String()))
	d.metrics.RecordTranscription(ctx, d.engine.Name(), res.Outcome.String(), res.Latency)
	log.Debug("transcribe: done", "outcome", res.Outcome.String(), "confidence", res.Confidence, "latency", res.Latency)
	return res
}

func empty(r Result, reason string) Result {
	r.Outcome = OutcomeEmpty
	r.Reason = reason
	r.Text = ""
	return r
}
