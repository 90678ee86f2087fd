// Package wakeword defines the boundary to the wake-word acoustic model.
//
// A [Classifier] scores a sliding window of recent audio frames and reports
// the most likely wake phrase with a confidence in [0, 1]. The window length
// is a property of the model; callers must supply exactly WindowFrames()
// frames, oldest first.
//
// Score is called once per incoming frame on the audio consumption path and
// must return promptly. Classifiers whose inference is slower than one frame
// period must run it in the background and report completed results on a
// later call.
package wakeword

import "github.com/MrWong99/wakepipe/pkg/audio"

// Score is a classifier verdict for one window.
type Score struct {
	// Phrase is the wake phrase the window most resembles. Empty means no
	// phrase was considered.
	Phrase string

	// Confidence in [0, 1].
	Confidence float64
}

// Classifier is implemented by every wake-word backend.
type Classifier interface {
	// WindowFrames returns the number of frames Score expects.
	WindowFrames() int

	// Score evaluates window. The slice and its frames must not be retained
	// or modified after Score returns.
	Score(window []audio.AudioFrame) Score
}

// PhraseSetter is implemented by classifiers that score against a phrase
// list of their own. The detector hands every reloaded list to it so both
// sides agree on which phrases exist.
type PhraseSetter interface {
	SetPhrases(phrases []string)
}
