// Package mock provides an in-memory [audio.Source] for unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and the test drives frame delivery
// explicitly through [Source.Send] and [Source.Finish].
//
// Typical usage:
//
//	src := mock.NewSource(16)
//	go p.Run(ctx) // consumes src
//	src.Send(frame)
//	src.Finish(nil)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wakepipe/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source].
// Set the exported Result fields before use; inspect the CallCount* fields after.
type Source struct {
	mu sync.Mutex

	ch       chan audio.AudioFrame
	stop     chan struct{}
	sendMu   sync.RWMutex
	finished bool
	seq      uint64
	err      error

	// StartError, when non-nil, is returned by [Source.Start].
	StartError error

	// DroppedResult is returned by [Source.Dropped].
	DroppedResult uint64

	// CloseError is returned by [Source.Close].
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSource returns a mock whose frame channel buffers up to buffer frames.
func NewSource(buffer int) *Source {
	return &Source{
		ch:   make(chan audio.AudioFrame, buffer),
		stop: make(chan struct{}),
	}
}

// Start implements [audio.Source].
func (s *Source) Start(context.Context) (<-chan audio.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return nil, s.StartError
	}
	return s.ch, nil
}

// Send delivers f to the consumer, blocking while the buffer is full. A zero
// f.Seq is replaced with the next sequence number. Send is a no-op once the
// source is finished.
func (s *Source) Send(f audio.AudioFrame) {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if f.Seq == 0 {
		s.seq++
		f.Seq = s.seq
	} else {
		s.seq = f.Seq
	}
	s.mu.Unlock()

	select {
	case s.ch <- f:
	case <-s.stop:
	}
}

// Finish closes the frame channel. A non-nil err is reported by [Source.Err].
func (s *Source) Finish(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.err = err
	close(s.stop)
	s.mu.Unlock()

	// Wait for in-flight sends before closing the channel.
	s.sendMu.Lock()
	close(s.ch)
	s.sendMu.Unlock()
}

// Err implements [audio.Source].
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped implements [audio.Source]. Returns DroppedResult.
func (s *Source) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DroppedResult
}

// Close implements [audio.Source]. It closes the frame channel if the test
// has not already done so.
func (s *Source) Close() error {
	s.Finish(nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}
