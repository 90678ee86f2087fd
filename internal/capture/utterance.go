package capture

import (
	"fmt"
	"time"

	"github.com/MrWong99/wakepipe/pkg/audio"
)

// Outcome tags how a capture ended.
type Outcome int

const (
	// OutcomeComplete means trailing silence ended the utterance.
	OutcomeComplete Outcome = iota + 1

	// OutcomeTimedOut means the maximum duration was reached, or no speech
	// was heard within the silence timeout. The payload may be partial or
	// empty; it is still forwarded.
	OutcomeTimedOut

	// OutcomeAborted means the orchestrator cancelled the capture. Aborted
	// utterances are never forwarded.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Utterance is one bounded segment of captured audio. After [Capturer.Take]
// hands it off, the capturer holds no reference to it.
type Utterance struct {
	// ID is unique per capture.
	ID string

	// Phrase is the wake phrase that triggered the capture.
	Phrase string

	// TriggerSeq is the sequence number of the frame that completed the wake
	// window.
	TriggerSeq uint64

	// Frames in strict sequence order. Empty for a zero-speech timeout.
	Frames []audio.AudioFrame

	// Start and End bound the captured audio in stream time.
	Start, End time.Duration

	// Outcome is complete or timed-out for forwarded utterances.
	Outcome Outcome

	// SampleRate of every frame.
	SampleRate int

	// Speech is the total duration of frames classified as speech.
	Speech time.Duration

	// TooShort is set when Speech is below the configured minimum speech
	// duration. Such utterances are not worth transcribing.
	TooShort bool
}

// PCM concatenates the frame payloads.
func (u *Utterance) PCM() []byte {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// Duration returns the amount of captured audio.
func (u *Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// Empty reports whether the utterance carries no audio.
func (u *Utterance) Empty() bool { return len(u.Frames) == 0 }
