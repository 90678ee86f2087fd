package wakeword

import (
	"strings"
	"time"

	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
)

// Settings is the detector's slice of the pipeline configuration.
type Settings struct {
	// Phrases restricts which classifier phrases may trigger. Matching is
	// case-insensitive. Empty accepts any non-empty phrase.
	Phrases []string

	// Threshold is the minimum confidence in [0, 1]. Scores equal to the
	// threshold are accepted.
	Threshold float64

	// Cooldown suppresses any further event for this long after an accepted
	// one, measured in stream time.
	Cooldown time.Duration
}

// Debouncer is the pure decision core of the detector: it decides, for one
// score at one point in stream time, whether an event is emitted. It is not
// safe for concurrent use.
type Debouncer struct {
	threshold float64
	cooldown  time.Duration
	phrases   map[string]struct{}

	fired bool
	last  time.Duration
}

// NewDebouncer returns a debouncer for s.
func NewDebouncer(s Settings) *Debouncer {
	d := &Debouncer{}
	d.Apply(s)
	return d
}

// Apply replaces the settings. Cooldown state is kept so that a
// reconfiguration cannot cause an immediate re-trigger.
func (d *Debouncer) Apply(s Settings) {
	d.threshold = s.Threshold
	d.cooldown = s.Cooldown
	d.phrases = make(map[string]struct{}, len(s.Phrases))
	for _, p := range s.Phrases {
		d.phrases[normalizePhrase(p)] = struct{}{}
	}
}

// Accept reports whether score at stream time at produces an event, and if
// so starts the cooldown.
func (d *Debouncer) Accept(score wakeword.Score, at time.Duration) bool {
	if score.Confidence < d.threshold || score.Phrase == "" {
		return false
	}
	if len(d.phrases) > 0 {
		if _, ok := d.phrases[normalizePhrase(score.Phrase)]; !ok {
			return false
		}
	}
	if d.fired && at-d.last < d.cooldown {
		return false
	}
	d.fired = true
	d.last = at
	return true
}

// Reset forgets the cooldown.
func (d *Debouncer) Reset() {
	d.fired = false
	d.last = 0
}

func normalizePhrase(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}
