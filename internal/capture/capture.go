// Package capture collects the audio that follows a wake-word trigger into a
// bounded [Utterance].
//
// A [Capturer] moves through a small state machine per capture:
//
//	Armed ──Arm()──▶ Capturing ──┬─ trailing silence ─▶ Completed
//	                             ├─ max duration     ─▶ TimedOut
//	                             ├─ no speech at all ─▶ TimedOut (empty)
//	                             └─ Abort()          ─▶ Aborted
//
// Take hands a Completed or TimedOut utterance off and returns the capturer
// to Armed. Aborted captures are discarded; an aborted capturer may be armed
// again directly.
//
// End of speech is decided by a [vad.SessionHandle]: frames it does not
// classify as speech count towards the silence timeout.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
)

// State is the capturer's lifecycle state.
type State int

const (
	StateArmed State = iota
	StateCapturing
	StateCompleted
	StateTimedOut
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateCapturing:
		return "capturing"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed-out"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsTerminal reports whether the capture has ended.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateAborted
}

// ErrNotArmed is returned by Arm while a capture is in progress or waiting to
// be taken.
var ErrNotArmed = errors.New("capture: not armed")

// Settings is the capturer's slice of the pipeline configuration.
type Settings struct {
	// MaxUtterance bounds the captured audio.
	MaxUtterance time.Duration

	// SilenceTimeout is the trailing silence that ends an utterance. Also
	// ends a capture in which no speech is heard at all.
	SilenceTimeout time.Duration

	// MinSpeech marks utterances with less speech as TooShort.
	MinSpeech time.Duration

	// VAD configures each capture's voice-activity session.
	VAD vad.Config
}

// Trigger identifies what armed a capture.
type Trigger struct {
	Phrase string
	Seq    uint64
}

// Capturer accumulates frames for one utterance at a time. It is driven from
// the audio consumption goroutine and is not safe for concurrent use.
type Capturer struct {
	engine   vad.Engine
	settings Settings

	state   State
	session vad.SessionHandle
	utt     *Utterance

	heardSpeech bool
	silence     time.Duration
}

// New returns a capturer in the Armed state.
func New(engine vad.Engine, s Settings) *Capturer {
	return &Capturer{engine: engine, settings: s}
}

// Apply replaces the settings used by the next Arm.
func (c *Capturer) Apply(s Settings) { c.settings = s }

// State returns the current state.
func (c *Capturer) State() State { return c.state }

// Arm starts a new capture.
func (c *Capturer) Arm(t Trigger) error {
	if c.state != StateArmed && c.state != StateAborted {
		return fmt.Errorf("%w: state %s", ErrNotArmed, c.state)
	}
	sess, err := c.engine.NewSession(c.settings.VAD)
	if err != nil {
		return fmt.Errorf("capture: vad session: %w", err)
	}
	c.session = sess
	c.utt = &Utterance{
		ID:         uuid.NewString(),
		Phrase:     t.Phrase,
		TriggerSeq: t.Seq,
	}
	c.heardSpeech = false
	c.silence = 0
	c.state = StateCapturing
	return nil
}

// Feed adds f to the capture. It returns true once the capture has ended;
// further frames are ignored until Take.
func (c *Capturer) Feed(f audio.AudioFrame) bool {
	if c.state != StateCapturing {
		return c.state.IsTerminal()
	}

	u := c.utt
	if len(u.Frames) == 0 {
		u.Start = f.Timestamp
		u.SampleRate = f.SampleRate
	}
	u.Frames = append(u.Frames, f)
	u.End = f.End()
	dur := f.Duration()

	ev, err := c.session.ProcessFrame(f.Data)
	if err != nil {
		slog.Warn("capture: vad failed, treating frame as silence", "utterance", u.ID, "seq", f.Seq, "err", err)
		ev = vad.Event{Type: vad.Silence}
	}
	if ev.Type.IsSpeech() {
		c.heardSpeech = true
		c.silence = 0
		u.Speech += dur
	} else {
		c.silence += dur
	}

	switch {
	case c.heardSpeech && c.silence >= c.settings.SilenceTimeout:
		c.finish(StateCompleted, OutcomeComplete)
	case !c.heardSpeech && c.silence >= c.settings.SilenceTimeout:
		// Nothing but silence after the trigger: forward an empty payload.
		u.Frames = nil
		u.End = u.Start
		c.finish(StateTimedOut, OutcomeTimedOut)
	case c.settings.MaxUtterance > 0 && u.Duration() >= c.settings.MaxUtterance:
		c.finish(StateTimedOut, OutcomeTimedOut)
	}
	return c.state.IsTerminal()
}

func (c *Capturer) finish(s State, o Outcome) {
	c.state = s
	c.utt.Outcome = o
	c.utt.TooShort = c.utt.Speech < c.settings.MinSpeech
	c.closeSession()
}

// Abort discards the capture in progress, including a finished utterance
// that was not taken yet. The capturer can be armed again afterwards.
func (c *Capturer) Abort() {
	if c.state == StateArmed || c.state == StateAborted {
		return
	}
	if c.utt != nil {
		c.utt.Outcome = OutcomeAborted
	}
	c.utt = nil
	c.state = StateAborted
	c.closeSession()
}

// Take hands off a finished utterance and re-arms the capturer. It returns
// false when no forwardable utterance is available.
func (c *Capturer) Take() (*Utterance, bool) {
	if c.state != StateCompleted && c.state != StateTimedOut {
		return nil, false
	}
	u := c.utt
	c.utt = nil
	c.state = StateArmed
	return u, true
}

func (c *Capturer) closeSession() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		slog.Debug("capture: close vad session", "err", err)
	}
	c.session = nil
}
