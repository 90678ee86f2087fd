// Package vad defines the voice-activity boundary used by the utterance
// capturer to find the end of speech.
//
// An [Engine] creates one stateful [SessionHandle] per capture. Sessions are
// synchronous: ProcessFrame classifies a single frame and returns at once, so
// it can run on the audio consumption path without stalling frame intake.
package vad

// Config holds the parameters for a VAD session. Thresholds are expressed in
// the engine's native scale; the energy engine uses normalised RMS in [0, 1].
type Config struct {
	// SampleRate of the frames passed to ProcessFrame, in Hz.
	SampleRate int

	// FrameSizeMs is the frame duration in milliseconds.
	FrameSizeMs int

	// SpeechThreshold is the level at or above which a frame counts as speech.
	SpeechThreshold float64

	// SilenceThreshold is the level below which a frame counts as silence.
	// Must be <= SpeechThreshold; the gap between the two is the hysteresis band.
	SilenceThreshold float64
}

// SessionHandle tracks voice activity for one audio stream. It is not safe for
// concurrent use.
type SessionHandle interface {
	// ProcessFrame classifies one frame of 16-bit little-endian PCM.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears the detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations must be safe for
// concurrent NewSession calls.
type Engine interface {
	// NewSession returns a session ready to accept frames, or an error if cfg
	// is out of range for this engine.
	NewSession(cfg Config) (SessionHandle, error)
}
