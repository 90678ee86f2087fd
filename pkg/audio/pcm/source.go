// Package pcm provides an [audio.Source] that reads raw signed 16-bit
// little-endian PCM from a byte stream: a recorder subprocess such as
// arecord or parec, a FIFO, standard input, or a plain file.
//
// The stream is cut into fixed-duration frames, normalised to mono at the
// pipeline sample rate and published through an [audio.FrameRing], so a slow
// consumer never stalls the reader.
package pcm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/MrWong99/wakepipe/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Opener opens the underlying byte stream. It is called once by Start.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Option configures a [Source].
type Option func(*Source)

// WithFormat sets the format of the incoming stream. Default: 16 kHz mono.
func WithFormat(f audio.Format) Option {
	return func(s *Source) { s.format = f }
}

// WithSampleRate sets the pipeline rate frames are resampled to.
// Default: 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) { s.sampleRate = rate }
}

// WithFrameDuration sets the frame cadence. Default: 20 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(s *Source) { s.frameDur = d }
}

// WithRingSize sets the capacity of the frame ring. Default: [audio.DefaultRingSize].
func WithRingSize(n int) Option {
	return func(s *Source) { s.ringSize = n }
}

// WithRingOptions forwards options to the underlying [audio.FrameRing].
func WithRingOptions(opts ...audio.RingOption) Option {
	return func(s *Source) { s.ringOpts = append(s.ringOpts, opts...) }
}

// WithRealtime paces frame production at the frame cadence. Use this for
// files, which can otherwise be read much faster than real time.
func WithRealtime(paced bool) Option {
	return func(s *Source) { s.paced = paced }
}

// WithEOFFatal controls whether end of stream is reported as a device
// failure. Live inputs (recorder processes, stdin) should set this; replayed
// files end cleanly.
func WithEOFFatal(fatal bool) Option {
	return func(s *Source) { s.eofFatal = fatal }
}

// Source reads frames from a byte stream. Create with [New], [Open], [Stdin]
// or [Command].
type Source struct {
	name       string
	open       Opener
	format     audio.Format
	sampleRate int
	frameDur   time.Duration
	ringSize   int
	ringOpts   []audio.RingOption
	paced      bool
	eofFatal   bool

	mu     sync.Mutex
	rc     io.ReadCloser
	ring   *audio.FrameRing
	err    error
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a source named name that reads from the stream returned by open.
func New(name string, open Opener, opts ...Option) *Source {
	s := &Source{
		name:       name,
		open:       open,
		format:     audio.Format{SampleRate: 16000, Channels: 1},
		sampleRate: 16000,
		frameDur:   20 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open creates a source that reads the file or FIFO at path.
func Open(path string, opts ...Option) *Source {
	return New(path, func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}, opts...)
}

// Stdin creates a source that reads standard input. End of input is fatal.
func Stdin(opts ...Option) *Source {
	opts = append([]Option{WithEOFFatal(true)}, opts...)
	return New("stdin", func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(os.Stdin), nil
	}, opts...)
}

// Command creates a source that runs argv and reads its standard output.
// Exit of the recorder process is fatal.
func Command(argv []string, opts ...Option) *Source {
	opts = append([]Option{WithEOFFatal(true)}, opts...)
	name := "command"
	if len(argv) > 0 {
		name = argv[0]
	}
	return New(name, func(ctx context.Context) (io.ReadCloser, error) {
		if len(argv) == 0 {
			return nil, errors.New("empty recorder command")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &procReader{ReadCloser: out, cmd: cmd}, nil
	}, opts...)
}

// Start opens the stream and begins producing frames.
func (s *Source) Start(ctx context.Context) (<-chan audio.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, audio.ErrSourceClosed
	}
	if s.ring != nil {
		return nil, fmt.Errorf("pcm: source %q already started", s.name)
	}
	if s.frameDur <= 0 || s.format.SampleRate <= 0 || s.sampleRate <= 0 {
		return nil, &audio.DeviceError{Device: s.name, Err: errors.New("invalid stream format")}
	}

	runCtx, cancel := context.WithCancel(ctx)
	rc, err := s.open(runCtx)
	if err != nil {
		cancel()
		return nil, &audio.DeviceError{Device: s.name, Err: err}
	}

	s.rc = rc
	s.cancel = cancel
	s.ring = audio.NewFrameRing(s.ringSize, s.ringOpts...)
	s.done = make(chan struct{})

	go s.loop(runCtx, rc, s.ring)

	slog.Info("pcm: source started",
		"device", s.name,
		"format", s.format.String(),
		"frame_ms", s.frameDur.Milliseconds(),
	)
	return s.ring.Frames(), nil
}

func (s *Source) loop(ctx context.Context, r io.Reader, ring *audio.FrameRing) {
	defer close(s.done)
	defer ring.Close()

	norm := &audio.Normalizer{SampleRate: s.sampleRate}
	buf := make([]byte, audio.FrameBytes(s.frameDur, s.format.SampleRate, s.format.Channels))

	var ticker *time.Ticker
	if s.paced {
		ticker = time.NewTicker(s.frameDur)
		defer ticker.Stop()
	}

	var (
		seq uint64
		ts  time.Duration
	)
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			s.finish(ctx, err)
			return
		}

		data := norm.Normalize(append([]byte(nil), buf...), s.format)
		if len(data) == 0 {
			continue
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}

		seq++
		ring.Push(audio.AudioFrame{
			Data:       data,
			SampleRate: s.sampleRate,
			Channels:   1,
			Seq:        seq,
			Timestamp:  ts,
		})
		ts += s.frameDur
	}
}

// finish records why the read loop stopped.
func (s *Source) finish(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
	if eof && !s.eofFatal {
		slog.Info("pcm: end of stream", "device", s.name)
		return
	}
	if eof {
		err = errors.New("input stream ended")
	}

	s.mu.Lock()
	s.err = &audio.DeviceError{Device: s.name, Err: err}
	s.mu.Unlock()
	slog.Error("pcm: read failed", "device", s.name, "err", err)
}

// Err returns the device failure that stopped the stream, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped returns how many frames the ring discarded.
func (s *Source) Dropped() uint64 {
	s.mu.Lock()
	ring := s.ring
	s.mu.Unlock()
	if ring == nil {
		return 0
	}
	return ring.Dropped()
}

// Close stops the reader, releases the stream and waits for the producer
// goroutine to exit.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rc, cancel, done := s.rc, s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := rc.Close()
	select {
	case <-done:
	case <-time.After(closeWait):
		// Reads on a NopCloser (stdin) cannot be interrupted.
		slog.Warn("pcm: reader did not stop in time", "device", s.name)
	}
	return err
}

const closeWait = 2 * time.Second

// procReader closes a recorder subprocess together with its pipe.
type procReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *procReader) Close() error {
	err := p.ReadCloser.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return err
}
