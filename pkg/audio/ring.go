package audio

import "sync/atomic"

// DefaultRingSize is the frame capacity used when none is configured
// (one second of 20 ms frames).
const DefaultRingSize = 50

// FrameRing is a bounded single-producer queue between a [Source] and its
// consumer. Push never blocks: when the ring is full the oldest queued frame
// is discarded and counted.
type FrameRing struct {
	ch      chan AudioFrame
	dropped atomic.Uint64
	onDrop  func(AudioFrame)
}

// RingOption configures a [FrameRing].
type RingOption func(*FrameRing)

// WithDropHook registers fn to be called with every discarded frame. fn runs on
// the producer goroutine and must not block.
func WithDropHook(fn func(AudioFrame)) RingOption {
	return func(r *FrameRing) { r.onDrop = fn }
}

// NewFrameRing creates a ring holding up to size frames. A size below one uses
// [DefaultRingSize].
func NewFrameRing(size int, opts ...RingOption) *FrameRing {
	if size < 1 {
		size = DefaultRingSize
	}
	r := &FrameRing{ch: make(chan AudioFrame, size)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Push enqueues f, evicting the oldest frame if the ring is full. Push must
// only be called from the producer goroutine and never after [FrameRing.Close].
func (r *FrameRing) Push(f AudioFrame) {
	for {
		select {
		case r.ch <- f:
			return
		default:
		}
		select {
		case old := <-r.ch:
			r.dropped.Add(1)
			if r.onDrop != nil {
				r.onDrop(old)
			}
		default:
			// Consumer drained it between the two selects; retry the send.
		}
	}
}

// Frames returns the consumer side of the ring.
func (r *FrameRing) Frames() <-chan AudioFrame { return r.ch }

// Len returns the number of queued frames.
func (r *FrameRing) Len() int { return len(r.ch) }

// Dropped returns the number of frames evicted so far.
func (r *FrameRing) Dropped() uint64 { return r.dropped.Load() }

// Close closes the consumer channel. Queued frames remain readable.
func (r *FrameRing) Close() { close(r.ch) }
