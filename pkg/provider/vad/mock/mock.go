// Package mock provides test doubles for the vad package interfaces.
//
// Session replays a scripted list of events, one per ProcessFrame call, and
// falls back to Default once the script is exhausted.
//
// Example:
//
//	sess := &mock.Session{
//	    Script:  []vad.Event{{Type: vad.SpeechStart}, {Type: vad.SpeechContinue}},
//	    Default: vad.Event{Type: vad.Silence},
//	}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/wakepipe/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh silent Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{Default: vad.Event{Type: vad.Silence}}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Script is consumed one event per ProcessFrame call.
	Script []vad.Event

	// Default is returned after Script is exhausted.
	Default vad.Event

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// Frames counts ProcessFrame calls.
	Frames int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ProcessFrame returns the next scripted event.
func (s *Session) ProcessFrame([]byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames++
	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}
	if len(s.Script) > 0 {
		ev := s.Script[0]
		s.Script = s.Script[1:]
		return ev, nil
	}
	return s.Default, nil
}

// Reset records the call. The remaining script is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

var _ vad.SessionHandle = (*Session)(nil)
