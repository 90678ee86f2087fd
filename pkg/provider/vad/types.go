package vad

// Event is the voice-activity classification of a single frame.
type Event struct {
	Type EventType

	// Probability is the speech likelihood (or normalised level) in [0, 1].
	Probability float64
}

// EventType enumerates VAD results.
type EventType int

const (
	// SpeechStart marks the first frame of a speech segment.
	SpeechStart EventType = iota

	// SpeechContinue marks ongoing speech.
	SpeechContinue

	// SpeechEnd marks the first non-speech frame after a speech segment.
	SpeechEnd

	// Silence marks a frame outside any speech segment.
	Silence
)

// IsSpeech reports whether the frame belongs to a speech segment.
func (t EventType) IsSpeech() bool {
	return t == SpeechStart || t == SpeechContinue
}

func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech-start"
	case SpeechContinue:
		return "speech-continue"
	case SpeechEnd:
		return "speech-end"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}
