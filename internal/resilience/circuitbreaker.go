// Package resilience protects the pipeline from a failing transcription
// engine.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open). After
// repeated engine failures it rejects calls immediately, so a crashed
// model-serving process costs the user one fast failure per wake trigger
// instead of a full timeout each time. The breaker never retries: a rejected
// or failed call is reported to the caller as-is.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful trials needed to close the
	// breaker again. Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker unlocked.
	OnStateChange func(from, to State)

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(from, to State)
	now           func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	trialsInFlight  int
	trialSuccesses  int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
		state:         StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn.
//
// A context cancellation returned by fn is not counted as a failure: the
// caller gave up, the engine did not fail.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var transition func()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		transition = cb.setState(StateHalfOpen)
		cb.trialsInFlight = 0
		cb.trialSuccesses = 0
	case StateHalfOpen:
		if cb.trialsInFlight+cb.trialSuccesses >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	trial := cb.state == StateHalfOpen
	if trial {
		cb.trialsInFlight++
	}
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}

	err := fn()

	cb.mu.Lock()
	switch {
	case errors.Is(err, context.Canceled):
		if trial {
			cb.trialsInFlight--
		}
		transition = nil
	case err != nil:
		transition = cb.recordFailure(trial)
	default:
		transition = cb.recordSuccess(trial)
	}
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
	return err
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(trial bool) func() {
	if trial {
		cb.trialsInFlight--
		cb.openedAt = cb.now()
		return cb.setState(StateOpen)
	}
	if cb.state != StateClosed {
		return nil
	}
	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		cb.openedAt = cb.now()
		return cb.setState(StateOpen)
	}
	return nil
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(trial bool) func() {
	if !trial {
		cb.consecutiveFail = 0
		return nil
	}
	cb.trialsInFlight--
	cb.trialSuccesses++
	if cb.state == StateHalfOpen && cb.trialSuccesses >= cb.halfOpenMax {
		cb.consecutiveFail = 0
		return cb.setState(StateClosed)
	}
	return nil
}

// setState switches state and returns the notification to run after the
// lock is released. Must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	failures := cb.consecutiveFail
	return func() {
		slog.Info("circuit breaker state changed",
			"name", cb.name,
			"from", from.String(),
			"to", to.String(),
			"consecutive_failures", failures)
		if cb.onStateChange != nil {
			cb.onStateChange(from, to)
		}
	}
}

// State returns the current [State] of the breaker. An open breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the actual transition happens
// on the next [CircuitBreaker.Execute] call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	transition := cb.setState(StateClosed)
	cb.consecutiveFail = 0
	cb.trialsInFlight = 0
	cb.trialSuccesses = 0
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}
