package pipeline

import (
	"fmt"
	"time"

	"github.com/MrWong99/wakepipe/internal/capture"
	"github.com/MrWong99/wakepipe/internal/command"
	"github.com/MrWong99/wakepipe/internal/transcribe"
	"github.com/MrWong99/wakepipe/internal/wakeword"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateCapturing
	StateTranscribing
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config is one immutable snapshot of the pipeline settings. A snapshot must
// not be modified after it is passed to [New] or [Orchestrator.Reconfigure].
type Config struct {
	Wake       wakeword.Settings
	Capture    capture.Settings
	Transcribe transcribe.Settings

	// Router classifies recognized text. Nil routes everything to type mode.
	Router *command.Router

	// ActionTimeout bounds how long the orchestrator waits for a dispatched
	// command before it listens again. Zero waits for completion.
	ActionTimeout time.Duration
}
