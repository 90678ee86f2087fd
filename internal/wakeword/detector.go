// Package wakeword turns per-window classifier scores into discrete
// detection events.
//
// The [Detector] keeps the sliding window the classifier needs, scores it on
// every frame, and lets a [Debouncer] decide whether the score becomes a
// [DetectionEvent]: the confidence must reach the threshold, the phrase must
// be configured, and no event may have been emitted within the cooldown.
//
// The detector runs for every frame regardless of what the rest of the
// pipeline is doing; deciding whether an event is acted on belongs to the
// orchestrator.
package wakeword

import (
	"time"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
)

// DetectionEvent reports that a wake phrase was heard.
type DetectionEvent struct {
	// Phrase is the wake phrase as reported by the classifier.
	Phrase string

	// Confidence of the triggering score.
	Confidence float64

	// Seq is the sequence number of the frame that completed the window.
	Seq uint64

	// At is the stream time at the end of that frame.
	At time.Duration
}

// Detector owns the sliding window and debounce state. It is driven by a
// single goroutine and is not safe for concurrent use.
type Detector struct {
	classifier wakeword.Classifier
	debounce   *Debouncer

	ring   []audio.AudioFrame
	next   int
	filled int
	window []audio.AudioFrame
}

// NewDetector returns a detector scoring windows with c.
func NewDetector(c wakeword.Classifier, s Settings) *Detector {
	n := max(c.WindowFrames(), 1)
	return &Detector{
		classifier: c,
		debounce:   NewDebouncer(s),
		ring:       make([]audio.AudioFrame, n),
		window:     make([]audio.AudioFrame, n),
	}
}

// Apply replaces the detection settings. A classifier implementing
// [wakeword.PhraseSetter] receives the new phrase list as well.
func (d *Detector) Apply(s Settings) {
	if ps, ok := d.classifier.(wakeword.PhraseSetter); ok {
		ps.SetPhrases(s.Phrases)
	}
	d.debounce.Apply(s)
}

// Process appends f to the window and, once the window is full, scores it.
// It returns the event and true when the score is accepted.
func (d *Detector) Process(f audio.AudioFrame) (DetectionEvent, bool) {
	n := len(d.ring)
	d.ring[d.next] = f
	d.next = (d.next + 1) % n
	if d.filled < n {
		d.filled++
		if d.filled < n {
			return DetectionEvent{}, false
		}
	}

	// Oldest first.
	copy(d.window, d.ring[d.next:])
	copy(d.window[n-d.next:], d.ring[:d.next])

	score := d.classifier.Score(d.window)
	at := f.End()
	if !d.debounce.Accept(score, at) {
		return DetectionEvent{}, false
	}
	return DetectionEvent{
		Phrase:     score.Phrase,
		Confidence: score.Confidence,
		Seq:        f.Seq,
		At:         at,
	}, true
}

// Reset clears the window and cooldown, e.g. after the source restarted.
func (d *Detector) Reset() {
	clear(d.ring)
	d.next = 0
	d.filled = 0
	d.debounce.Reset()
}
