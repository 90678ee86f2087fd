// Package pipeline binds the wake pipeline stages together.
//
// The [Orchestrator] owns the state machine
//
//	Idle → Listening → Capturing → Transcribing → Dispatching → Listening
//
// and runs two goroutines joined only through that state:
//
//   - the scanner consumes every audio frame in sequence order, always runs
//     the wake-word detector, and feeds the capturer while Capturing;
//   - the worker transcribes one finished utterance and dispatches the
//     resulting command, off the audio path.
//
// Only one utterance is in flight at a time. A detection that arrives while
// the orchestrator is not Listening is dropped, never queued. [Orchestrator.Trigger]
// injects a detection from outside the audio path, such as a keyboard
// shortcut, and passes the same gate. Action
// execution is waited on for at most Config.ActionTimeout; a hung action does
// not keep the pipeline from listening again.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/wakepipe/internal/action"
	"github.com/MrWong99/wakepipe/internal/capture"
	"github.com/MrWong99/wakepipe/internal/command"
	"github.com/MrWong99/wakepipe/internal/observe"
	"github.com/MrWong99/wakepipe/internal/status"
	"github.com/MrWong99/wakepipe/internal/transcribe"
	"github.com/MrWong99/wakepipe/internal/wakeword"
	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
	wakeprovider "github.com/MrWong99/wakepipe/pkg/provider/wakeword"
)

// ErrAlreadyRunning is returned by [Orchestrator.Run] when the orchestrator
// has already been started.
var ErrAlreadyRunning = errors.New("pipeline: already running")

// Transcriber turns an utterance into a result. [*transcribe.Dispatcher]
// implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, u *capture.Utterance) transcribe.Result
	Apply(s transcribe.Settings)
}

// Dispatcher performs a routed command. [*command.Dispatcher] implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) (int, error)
}

// Compile-time interface assertions.
var (
	_ Transcriber = (*transcribe.Dispatcher)(nil)
	_ Dispatcher  = (*command.Dispatcher)(nil)
)

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithStatus sets the publisher notified on every state transition.
func WithStatus(p status.Publisher) Option {
	return func(o *Orchestrator) { o.status = p }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs the pipeline. Create one with [New] and start it with
// [Orchestrator.Run]; an orchestrator runs at most once.
type Orchestrator struct {
	source      audio.Source
	detector    *wakeword.Detector
	capturer    *capture.Capturer
	transcriber Transcriber
	dispatcher  Dispatcher
	status      status.Publisher
	metrics     *observe.Metrics

	cfg atomic.Pointer[Config]

	// Scanner-owned.
	applied *Config
	lastSeq uint64
	dropped uint64

	mu      sync.Mutex
	state   State
	started bool

	jobs     chan job
	triggers chan string
	actions  sync.WaitGroup
}

type job struct {
	utt *capture.Utterance
	cfg *Config
}

// New assembles an orchestrator. classifier scores wake windows and vadEngine
// opens one session per capture.
func New(
	src audio.Source,
	classifier wakeprovider.Classifier,
	vadEngine vad.Engine,
	tr Transcriber,
	d Dispatcher,
	cfg *Config,
	opts ...Option,
) *Orchestrator {
	cfg = normalize(cfg)
	o := &Orchestrator{
		source:      src,
		detector:    wakeword.NewDetector(classifier, cfg.Wake),
		capturer:    capture.New(vadEngine, cfg.Capture),
		transcriber: tr,
		dispatcher:  d,
		jobs:        make(chan job, 1),
		triggers:    make(chan string, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.cfg.Store(cfg)
	o.applied = cfg
	tr.Apply(cfg.Transcribe)
	return o
}

func normalize(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Router == nil {
		c := *cfg
		c.Router = command.NewRouter(command.Settings{})
		cfg = &c
	}
	return cfg
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Config returns the latest snapshot passed to [New] or
// [Orchestrator.Reconfigure]. It may not be in effect yet.
func (o *Orchestrator) Config() *Config { return o.cfg.Load() }

// Reconfigure replaces the settings snapshot. The new snapshot takes effect
// the next time the orchestrator is Listening; an utterance in flight
// finishes with the settings it started with.
func (o *Orchestrator) Reconfigure(cfg *Config) {
	o.cfg.Store(normalize(cfg))
	slog.Info("pipeline: configuration staged")
}

// ManualPhrase is the phrase recorded for a [Orchestrator.Trigger] call
// without one.
const ManualPhrase = "manual"

// Trigger starts a capture as if phrase had been detected. It reports false
// when the orchestrator is not Listening or another trigger is still pending.
// An accepted trigger is dropped if a detection wins the race for the
// Listening state first.
func (o *Orchestrator) Trigger(phrase string) bool {
	if o.State() != StateListening {
		return false
	}
	if phrase == "" {
		phrase = ManualPhrase
	}
	select {
	case o.triggers <- phrase:
		return true
	default:
		return false
	}
}

// Run starts the audio source and drives the pipeline until ctx is cancelled
// or the source fails. It returns nil on a clean stop and the
// [*audio.DeviceError] when the device is unavailable or fails. The final
// state is always Idle.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.started = true
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := o.source.Start(ctx)
	if err != nil {
		return err
	}

	o.transition(ctx, StateIdle, StateListening)
	slog.Info("pipeline: listening")

	var wg sync.WaitGroup
	wg.Go(func() { o.work(ctx) })

	err = o.scan(ctx, frames)

	cancel()
	wg.Wait()
	o.actions.Wait()
	o.stop(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error("pipeline: stopped", "err", err)
	} else {
		slog.Info("pipeline: stopped")
	}
	return err
}

// scan is the single consumer of the frame stream.
func (o *Orchestrator) scan(ctx context.Context, frames <-chan audio.AudioFrame) error {
	for {
		select {
		case <-ctx.Done():
			o.abortCapture(ctx, "shutdown")
			// The source closes the channel once it sees ctx; release it
			// if it blocks on send.
			go audio.Drain(frames)
			return nil
		case f, ok := <-frames:
			if !ok {
				o.abortCapture(ctx, "source stopped")
				if err := o.source.Err(); err != nil {
					return err
				}
				return nil
			}
			o.handleFrame(ctx, f)
		case phrase := <-o.triggers:
			o.handleTrigger(ctx, phrase)
		}
	}
}

func (o *Orchestrator) handleTrigger(ctx context.Context, phrase string) {
	ev := wakeword.DetectionEvent{Phrase: phrase, Confidence: 1, Seq: o.lastSeq}
	st := o.State()
	if st != StateListening {
		o.dropDetection(ctx, ev, st)
		return
	}
	o.applyPending()
	o.startCapture(ctx, ev)
}

func (o *Orchestrator) handleFrame(ctx context.Context, f audio.AudioFrame) {
	if f.Seq <= o.lastSeq {
		slog.Debug("pipeline: discarding out-of-order frame", "seq", f.Seq, "last", o.lastSeq)
		return
	}
	o.lastSeq = f.Seq
	o.countDrops(ctx)

	st := o.State()
	if st == StateListening {
		o.applyPending()
	}

	ev, detected := o.detector.Process(f)

	switch st {
	case StateListening:
		if detected {
			o.startCapture(ctx, ev)
		}
	case StateCapturing:
		if detected {
			o.dropDetection(ctx, ev, st)
		}
		if o.capturer.Feed(f) {
			o.finishCapture(ctx)
		}
	default:
		if detected {
			o.dropDetection(ctx, ev, st)
		}
	}
}

func (o *Orchestrator) countDrops(ctx context.Context) {
	n := o.source.Dropped()
	if n <= o.dropped {
		return
	}
	o.metrics.RecordFramesDropped(ctx, n-o.dropped)
	slog.Debug("pipeline: audio frames dropped", "count", n-o.dropped, "total", n)
	o.dropped = n
}

// applyPending brings the staged snapshot into effect. It runs on the
// scanner while Listening, when the worker is idle.
func (o *Orchestrator) applyPending() {
	cfg := o.cfg.Load()
	if cfg == o.applied {
		return
	}
	o.detector.Apply(cfg.Wake)
	o.capturer.Apply(cfg.Capture)
	o.transcriber.Apply(cfg.Transcribe)
	o.applied = cfg
	slog.Info("pipeline: configuration applied",
		"phrases", cfg.Wake.Phrases,
		"threshold", cfg.Wake.Threshold,
		"prefix", cfg.Router.Prefix(),
	)
}

func (o *Orchestrator) startCapture(ctx context.Context, ev wakeword.DetectionEvent) {
	if err := o.capturer.Arm(capture.Trigger{Phrase: ev.Phrase, Seq: ev.Seq}); err != nil {
		slog.Warn("pipeline: cannot arm capture", "phrase", ev.Phrase, "err", err)
		o.metrics.RecordDetection(ctx, false)
		return
	}
	if !o.transition(ctx, StateListening, StateCapturing) {
		o.capturer.Abort()
		o.metrics.RecordDetection(ctx, false)
		return
	}
	o.metrics.RecordDetection(ctx, true)
	slog.Info("pipeline: wake phrase detected",
		"phrase", ev.Phrase,
		"confidence", ev.Confidence,
		"seq", ev.Seq,
	)
}

func (o *Orchestrator) dropDetection(ctx context.Context, ev wakeword.DetectionEvent, st State) {
	o.metrics.RecordDetection(ctx, false)
	slog.Debug("pipeline: detection dropped",
		"phrase", ev.Phrase,
		"confidence", ev.Confidence,
		"seq", ev.Seq,
		"state", st.String(),
	)
}

func (o *Orchestrator) finishCapture(ctx context.Context) {
	u, ok := o.capturer.Take()
	if !ok {
		o.transition(ctx, StateCapturing, StateListening)
		return
	}
	o.metrics.RecordCapture(ctx, u.Outcome.String(), u.Duration())
	slog.Debug("pipeline: capture finished",
		"utterance", u.ID,
		"outcome", u.Outcome.String(),
		"frames", len(u.Frames),
		"duration", u.Duration(),
		"speech", u.Speech,
	)
	if !o.transition(ctx, StateCapturing, StateTranscribing) {
		return
	}
	select {
	case o.jobs <- job{utt: u, cfg: o.applied}:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) abortCapture(ctx context.Context, reason string) {
	if o.State() != StateCapturing {
		return
	}
	o.capturer.Abort()
	o.metrics.RecordCapture(ctx, capture.OutcomeAborted.String(), 0)
	slog.Info("pipeline: capture aborted", "reason", reason)
}

// work runs transcription and dispatch for one utterance at a time.
func (o *Orchestrator) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-o.jobs:
			o.process(ctx, j)
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, j job) {
	ctx = observe.WithUtterance(ctx, j.utt.ID)
	res := o.transcriber.Transcribe(ctx, j.utt)
	if ctx.Err() != nil {
		slog.Debug("pipeline: discarding transcription after shutdown", "utterance", j.utt.ID)
		return
	}

	log := observe.Logger(ctx)
	switch res.Outcome {
	case transcribe.OutcomeOK:
	case transcribe.OutcomeEngineError:
		log.Warn("pipeline: transcription failed, listening again", "err", res.Err)
		o.transition(ctx, StateTranscribing, StateListening)
		return
	default:
		log.Debug("pipeline: nothing to dispatch", "reason", res.Reason)
		o.transition(ctx, StateTranscribing, StateListening)
		return
	}

	if !o.transition(ctx, StateTranscribing, StateDispatching) {
		return
	}
	cmd := j.cfg.Router.Route(res)
	o.metrics.RecordCommand(ctx, cmd.Mode.String(), cmd.Validation.String())
	if err := cmd.Err(); err != nil {
		log.Warn("pipeline: command not dispatched",
			"text", cmd.Text,
			"suggestion", cmd.Suggestion,
			"err", err,
		)
	} else {
		o.dispatch(ctx, j.cfg, cmd)
	}
	o.transition(ctx, StateDispatching, StateListening)
}

// dispatch starts cmd and waits for it at most cfg.ActionTimeout. The action
// keeps running after a timeout until it finishes or the pipeline stops.
func (o *Orchestrator) dispatch(ctx context.Context, cfg *Config, cmd command.Command) {
	ctx, span := observe.StartSpan(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("command.mode", cmd.Mode.String()),
			attribute.String("command.action", cmd.ActionID),
		),
	)
	log := observe.Logger(ctx).With("mode", cmd.Mode.String())

	done := make(chan struct{})
	o.actions.Go(func() {
		defer close(done)
		defer span.End()

		start := time.Now()
		exit, err := o.dispatcher.Dispatch(ctx, cmd)
		elapsed := time.Since(start)
		reason := failureReason(err)
		o.metrics.RecordAction(ctx, cmd.Mode.String(), reason, elapsed)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)
			log.Warn("pipeline: action failed",
				"action", cmd.ActionID,
				"exit_status", exit,
				"elapsed", elapsed,
				"err", err,
			)
			return
		}
		log.Info("pipeline: command dispatched",
			"action", cmd.ActionID,
			"args", cmd.Args,
			"exit_status", exit,
			"elapsed", elapsed,
		)
	})

	var timeout <-chan time.Time
	if cfg.ActionTimeout > 0 {
		t := time.NewTimer(cfg.ActionTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-done:
	case <-timeout:
		log.Warn("pipeline: action still running, listening again",
			"action", cmd.ActionID,
			"timeout", cfg.ActionTimeout,
		)
	case <-ctx.Done():
	}
}

func failureReason(err error) string {
	var ee *action.ExecutionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &ee) && ee.ExitStatus > 0:
		return "exit-status"
	default:
		return "error"
	}
}

// transition moves from the expected state to the next one and reports
// whether it did. It fails when another goroutine changed the state first.
// Signals are published under the lock so listeners see transitions in order.
func (o *Orchestrator) transition(ctx context.Context, from, to State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		return false
	}
	o.state = to
	o.notifyLocked(ctx, from, to)
	return true
}

// stop forces the terminal Idle state.
func (o *Orchestrator) stop(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if from := o.state; from != StateIdle {
		o.state = StateIdle
		o.notifyLocked(ctx, from, StateIdle)
	}
}

func (o *Orchestrator) notifyLocked(ctx context.Context, from, to State) {
	o.metrics.RecordTransition(ctx, from.String(), to.String())
	slog.Debug("pipeline: state", "from", from.String(), "to", to.String())
	if o.status != nil {
		o.status.Publish(status.Signal{State: to.String(), Previous: from.String(), Timestamp: time.Now()})
	}
}
