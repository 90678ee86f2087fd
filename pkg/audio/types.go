package audio

import "time"

// AudioFrame is a fixed-duration block of 16-bit little-endian PCM produced by
// a [Source]. Frames are immutable once produced: stages may read Data but
// must never write to it.
type AudioFrame struct {
	// Data holds the PCM samples.
	Data []byte

	// SampleRate in Hz (16000 for the default pipeline).
	SampleRate int

	// Channels is 1 after source normalisation.
	Channels int

	// Seq is the monotonic sequence number assigned by the producer. The first
	// frame of a stream has Seq 1; gaps indicate frames dropped by a [FrameRing].
	Seq uint64

	// Timestamp marks the frame start relative to stream start.
	Timestamp time.Duration
}

// Duration returns the amount of audio carried by the frame.
func (f AudioFrame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// End returns the stream-relative time at which the frame ends.
func (f AudioFrame) End() time.Duration {
	return f.Timestamp + f.Duration()
}
