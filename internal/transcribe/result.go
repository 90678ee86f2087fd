package transcribe

import (
	"errors"
	"fmt"
	"time"
)

// Outcome tags a transcription result.
type Outcome int

const (
	// OutcomeOK means the engine recognized usable text.
	OutcomeOK Outcome = iota + 1

	// OutcomeEmpty means there was nothing to act on: no audio, too little
	// speech, no text, or confidence below the configured minimum.
	OutcomeEmpty

	// OutcomeEngineError means the engine failed, timed out, or was skipped
	// because its circuit breaker is open.
	OutcomeEngineError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeEngineError:
		return "engine-error"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// ErrEngine is matched by every [EngineError].
var ErrEngine = errors.New("transcription engine error")

// EngineError reports a failed engine call. errors.Is(err, ErrEngine) holds
// for every EngineError; Unwrap exposes the cause.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("transcribe: engine %q: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngine }

// Result is the immutable output of one [Dispatcher.Transcribe] call.
type Result struct {
	// UtteranceID identifies the utterance the result belongs to.
	UtteranceID string

	// Text is the recognized text after word overrides. Empty unless Outcome
	// is OutcomeOK.
	Text string

	Confidence float64

	// Latency is the wall time spent in the engine. Zero when the engine was
	// not called.
	Latency time.Duration

	// Audio is the duration of the submitted audio.
	Audio time.Duration

	Outcome Outcome

	// Reason says why an empty result is empty.
	Reason string

	// Err is an *EngineError when Outcome is OutcomeEngineError.
	Err error
}

// OK reports whether the result should be routed.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }
