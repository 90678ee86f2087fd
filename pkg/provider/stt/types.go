package stt

import "strings"

// Request is a single transcription job.
type Request struct {
	// Audio is mono 16-bit little-endian PCM.
	Audio []byte

	// SampleRate of Audio in Hz.
	SampleRate int

	// ModelID selects the model for backends serving several. Empty uses the
	// backend default.
	ModelID string

	// Language is a BCP-47 hint such as "en". Empty lets the engine detect it.
	Language string

	// Prompt biases recognition towards expected vocabulary.
	Prompt string
}

// Result is the engine's answer for one Request.
type Result struct {
	// Text is the recognized text, possibly empty.
	Text string

	// Confidence in [0, 1]. Backends without a score report 1 for non-empty
	// text.
	Confidence float64
}

// IsEmpty reports whether the result carries no usable text.
func (r Result) IsEmpty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// blankMarkers are emitted by whisper models for non-speech input.
var blankMarkers = []string{"[BLANK_AUDIO]", "[SILENCE]", "(silence)", "[ Silence ]"}

// CleanText trims whitespace and removes whisper's non-speech markers.
func CleanText(s string) string {
	for _, m := range blankMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.Join(strings.Fields(s), " ")
}
