// Package mock provides a scripted wakeword.Classifier for tests.
//
// Scores are returned one per Score call in order; after the script is
// exhausted the zero Score is returned. ScoreFunc, when set, takes precedence
// and lets a test derive the score from the window contents.
package mock

import (
	"sync"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
)

// Classifier is a mock implementation of wakeword.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Window is returned by WindowFrames. Zero means 1.
	Window int

	// Script is consumed one score per call.
	Script []wakeword.Score

	// ScoreFunc, if non-nil, computes every score.
	ScoreFunc func(window []audio.AudioFrame) wakeword.Score

	// Calls counts Score invocations.
	Calls int

	// LastSeqs holds the frame sequence numbers of the most recent window.
	LastSeqs []uint64
}

// WindowFrames implements wakeword.Classifier.
func (c *Classifier) WindowFrames() int {
	if c.Window <= 0 {
		return 1
	}
	return c.Window
}

// Score implements wakeword.Classifier.
func (c *Classifier) Score(window []audio.AudioFrame) wakeword.Score {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	c.LastSeqs = c.LastSeqs[:0]
	for _, f := range window {
		c.LastSeqs = append(c.LastSeqs, f.Seq)
	}
	if c.ScoreFunc != nil {
		return c.ScoreFunc(window)
	}
	if len(c.Script) == 0 {
		return wakeword.Score{}
	}
	s := c.Script[0]
	c.Script = c.Script[1:]
	return s
}

// CallCount returns the number of Score calls so far.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls
}

var _ wakeword.Classifier = (*Classifier)(nil)
