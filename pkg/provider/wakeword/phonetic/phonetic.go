// Package phonetic implements a wake-word classifier on top of a
// speech-to-text engine.
//
// The classifier transcribes the sliding window in the background whenever
// the recent frames carry enough energy, then scores the transcript against
// each configured wake phrase with [MatchPhrase]. Because transcription takes
// longer than a frame period, Score never waits for it: a finished verdict is
// reported, once, on the first Score call after it becomes available.
//
// It trades latency for zero extra model files: any stt.Engine (whisper.cpp,
// whisper-server, OpenAI) doubles as the wake-word model.
package phonetic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
)

const (
	defaultWindowFrames = 75 // 1.5 s of 20 ms frames
	defaultHopFrames    = 25
	defaultMinLevel     = 0.02
	defaultTimeout      = 5 * time.Second
)

var (
	_ wakeword.Classifier   = (*Classifier)(nil)
	_ wakeword.PhraseSetter = (*Classifier)(nil)
)

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithWindowFrames sets the window length in frames. Default: 75.
func WithWindowFrames(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.windowFrames = n
		}
	}
}

// WithHopFrames sets the minimum number of frames between two background
// transcriptions. Default: 25.
func WithHopFrames(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.hopFrames = n
		}
	}
}

// WithMinLevel sets the normalised RMS level the newest hop of frames must
// reach before the window is transcribed. Default: 0.02.
func WithMinLevel(level float64) Option {
	return func(c *Classifier) { c.minLevel = level }
}

// WithTimeout bounds each background transcription. Default: 5 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLanguage sets the language hint passed to the engine.
func WithLanguage(lang string) Option {
	return func(c *Classifier) { c.language = lang }
}

// Classifier scores windows by transcribing them. Create with [New]; call
// Close to wait for in-flight transcriptions.
type Classifier struct {
	engine       stt.Engine
	windowFrames int
	hopFrames    int
	minLevel     float64
	timeout      time.Duration
	language     string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	phrases   []string
	busy      bool
	sinceLast int
	pending   *wakeword.Score
}

// New returns a classifier for phrases backed by engine.
func New(engine stt.Engine, phrases []string, opts ...Option) *Classifier {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Classifier{
		engine:       engine,
		phrases:      append([]string(nil), phrases...),
		windowFrames: defaultWindowFrames,
		hopFrames:    defaultHopFrames,
		minLevel:     defaultMinLevel,
		timeout:      defaultTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, o := range opts {
		o(c)
	}
	// The first window is eligible as soon as it is full.
	c.sinceLast = c.hopFrames
	return c
}

// SetPhrases replaces the phrases transcripts are scored against. A
// transcription already in flight is scored with the new list.
func (c *Classifier) SetPhrases(phrases []string) {
	c.mu.Lock()
	c.phrases = append([]string(nil), phrases...)
	c.mu.Unlock()
}

// WindowFrames implements wakeword.Classifier.
func (c *Classifier) WindowFrames() int { return c.windowFrames }

// Score implements wakeword.Classifier. It never blocks on the engine.
func (c *Classifier) Score(window []audio.AudioFrame) wakeword.Score {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		s := *c.pending
		c.pending = nil
		return s
	}

	c.sinceLast++
	if c.busy || c.sinceLast < c.hopFrames || c.ctx.Err() != nil {
		return wakeword.Score{}
	}

	recent := window[max(len(window)-c.hopFrames, 0):]
	if peakLevel(recent) < c.minLevel {
		return wakeword.Score{}
	}

	pcm, rate := concat(window)
	c.busy = true
	c.sinceLast = 0
	c.wg.Add(1)
	go c.classify(pcm, rate)
	return wakeword.Score{}
}

func (c *Classifier) classify(pcm []byte, sampleRate int) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	res, err := c.engine.Transcribe(ctx, stt.Request{
		Audio:      pcm,
		SampleRate: sampleRate,
		Language:   c.language,
	})

	var verdict *wakeword.Score
	switch {
	case err != nil:
		if c.ctx.Err() == nil {
			slog.Warn("phonetic: window transcription failed", "engine", c.engine.Name(), "err", err)
		}
	case !res.IsEmpty():
		c.mu.Lock()
		phrases := c.phrases
		c.mu.Unlock()
		phrase, conf := BestPhrase(res.Text, phrases)
		slog.Debug("phonetic: window scored", "text", res.Text, "phrase", phrase, "confidence", conf)
		verdict = &wakeword.Score{Phrase: phrase, Confidence: conf}
	}

	c.mu.Lock()
	c.busy = false
	if verdict != nil {
		c.pending = verdict
	}
	c.mu.Unlock()
}

// Close cancels background transcriptions and waits for them to exit.
func (c *Classifier) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

func peakLevel(frames []audio.AudioFrame) float64 {
	var peak float64
	for _, f := range frames {
		if l := audio.NormalizedRMS(f.Data); l > peak {
			peak = l
		}
	}
	return peak
}

func concat(frames []audio.AudioFrame) ([]byte, int) {
	n := 0
	for _, f := range frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	rate := 0
	for _, f := range frames {
		out = append(out, f.Data...)
		rate = f.SampleRate
	}
	return out, rate
}
