// Package energy implements a pure-Go voice activity detector on normalised
// RMS frame energy with hysteresis.
//
// A segment starts after StartFrames consecutive frames at or above the
// speech threshold and ends after HangoverFrames consecutive frames below the
// silence threshold. Frames between the two thresholds keep the current
// state.
package energy

import (
	"errors"
	"fmt"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
)

// DefaultThreshold is the normalised RMS level treated as speech when no
// threshold is configured.
const DefaultThreshold = 0.02

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("energy: session closed")

// Option configures an [Engine].
type Option func(*Engine)

// WithStartFrames sets how many consecutive loud frames open a segment.
// Default: 2.
func WithStartFrames(n int) Option {
	return func(e *Engine) { e.startFrames = max(n, 1) }
}

// WithHangoverFrames sets how many consecutive quiet frames close a segment.
// Default: 3.
func WithHangoverFrames(n int) Option {
	return func(e *Engine) { e.hangoverFrames = max(n, 1) }
}

// Engine creates energy VAD sessions.
type Engine struct {
	startFrames    int
	hangoverFrames int
}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{startFrames: 2, hangoverFrames: 3}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a session. A zero SpeechThreshold uses
// [DefaultThreshold]; a zero SilenceThreshold uses half the speech threshold.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = cfg.SpeechThreshold / 2
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %v out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %v must be within [0, %v]",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	return &session{
		cfg:            cfg,
		startFrames:    e.startFrames,
		hangoverFrames: e.hangoverFrames,
	}, nil
}

type session struct {
	cfg            vad.Config
	startFrames    int
	hangoverFrames int

	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, ErrClosed
	}
	level := audio.NormalizedRMS(frame)
	ev := vad.Event{Probability: min(level/s.cfg.SpeechThreshold, 1)}

	if s.inSpeech {
		if level < s.cfg.SilenceThreshold {
			s.silenceCount++
			if s.silenceCount >= s.hangoverFrames {
				s.inSpeech = false
				s.silenceCount = 0
				ev.Type = vad.SpeechEnd
				return ev, nil
			}
		} else {
			s.silenceCount = 0
		}
		ev.Type = vad.SpeechContinue
		return ev, nil
	}

	if level >= s.cfg.SpeechThreshold {
		s.speechCount++
		if s.speechCount >= s.startFrames {
			s.inSpeech = true
			s.speechCount = 0
			ev.Type = vad.SpeechStart
			return ev, nil
		}
	} else {
		s.speechCount = 0
	}
	ev.Type = vad.Silence
	return ev, nil
}

func (s *session) Reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

func (s *session) Close() error {
	s.closed = true
	return nil
}
