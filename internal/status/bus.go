// Package status fans pipeline state transitions out to any number of
// listeners: a status bar indicator, a log, an HTTP client.
//
// Publishing never blocks. A listener that falls behind loses its oldest
// pending signals, never the newest one, so every listener converges on the
// current state.
package status

import (
	"sync"
	"time"
)

// Signal is one state transition notification.
type Signal struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`

	// Seq increases by one per published signal.
	Seq uint64 `json:"seq"`

	// Previous is the state left by this transition.
	Previous string `json:"previous,omitempty"`
}

// Publisher accepts signals. Implementations must not block.
type Publisher interface {
	Publish(Signal)
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// Bus is a non-blocking fan-out of signals. The zero value is not usable; use
// [NewBus].
type Bus struct {
	mu   sync.Mutex
	subs map[chan Signal]struct{}
	last Signal
	seq  uint64
}

var _ Publisher = (*Bus)(nil)

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Signal]struct{})}
}

// Publish stamps sig with the next sequence number and delivers it to every
// subscriber.
func (b *Bus) Publish(sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	sig.Seq = b.seq
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	b.last = sig
	for ch := range b.subs {
		deliver(ch, sig)
	}
}

// deliver sends without blocking, evicting the oldest queued signal when the
// subscriber is full.
func deliver(ch chan Signal, sig Signal) {
	for {
		select {
		case ch <- sig:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe registers a listener. The current state, if any, is queued
// first. Call cancel to unsubscribe; the channel is closed afterwards.
func (b *Bus) Subscribe(buffer int) (<-chan Signal, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Signal, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	if b.seq > 0 {
		ch <- b.last
	}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Last returns the most recent signal. ok is false before the first Publish.
func (b *Bus) Last() (sig Signal, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.seq > 0
}

// Subscribers returns the number of registered listeners.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
