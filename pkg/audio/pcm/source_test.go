package pcm_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/audio/pcm"
)

func bytesOpener(data []byte) pcm.Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func collect(t *testing.T, ch <-chan audio.AudioFrame) []audio.AudioFrame {
	t.Helper()
	var frames []audio.AudioFrame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("timed out waiting for source to finish")
		}
	}
}

func TestSource_FramesInOrder(t *testing.T) {
	t.Parallel()

	// 5 frames of 20 ms at 16 kHz mono, plus a trailing partial frame.
	data := make([]byte, 5*640+100)
	src := pcm.New("test", bytesOpener(data), pcm.WithRingSize(16))
	defer src.Close()

	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	frames := collect(t, ch)

	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	for i, f := range frames {
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d: Seq = %d, want %d", i, f.Seq, i+1)
		}
		if f.Timestamp != time.Duration(i)*20*time.Millisecond {
			t.Errorf("frame %d: Timestamp = %v", i, f.Timestamp)
		}
		if len(f.Data) != 640 || f.SampleRate != 16000 || f.Channels != 1 {
			t.Errorf("frame %d: len=%d rate=%d ch=%d", i, len(f.Data), f.SampleRate, f.Channels)
		}
	}
	if err := src.Err(); err != nil {
		t.Errorf("Err = %v, want nil after clean EOF", err)
	}
}

func TestSource_Normalises(t *testing.T) {
	t.Parallel()

	// One 20 ms frame of 48 kHz stereo.
	data := make([]byte, 960*2*2)
	src := pcm.New("test", bytesOpener(data),
		pcm.WithFormat(audio.Format{SampleRate: 48000, Channels: 2}),
	)
	defer src.Close()

	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	frames := collect(t, ch)
	if len(frames) != 1 || len(frames[0].Data) != 640 {
		t.Fatalf("frames = %d, want one 640-byte frame", len(frames))
	}
}

func TestSource_EOFFatal(t *testing.T) {
	t.Parallel()

	src := pcm.New("mic", bytesOpener(make([]byte, 640)), pcm.WithEOFFatal(true))
	defer src.Close()

	ch, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	collect(t, ch)

	err = src.Err()
	if !audio.IsDeviceError(err) {
		t.Fatalf("Err = %v, want DeviceError", err)
	}
}

func TestSource_OpenFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("no such device")
	src := pcm.New("hw:9", func(context.Context) (io.ReadCloser, error) { return nil, cause })

	_, err := src.Start(context.Background())
	var de *audio.DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("Start err = %v, want *DeviceError", err)
	}
	if de.Device != "hw:9" || !errors.Is(err, cause) {
		t.Errorf("DeviceError = %+v", de)
	}
}

func TestSource_OpenMissingFile(t *testing.T) {
	t.Parallel()

	src := pcm.Open(t.TempDir() + "/missing.pcm")
	if _, err := src.Start(context.Background()); !audio.IsDeviceError(err) {
		t.Fatalf("Start err = %v, want DeviceError", err)
	}
}

func TestSource_StartAfterClose(t *testing.T) {
	t.Parallel()

	src := pcm.New("test", bytesOpener(nil))
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.Start(context.Background()); !errors.Is(err, audio.ErrSourceClosed) {
		t.Errorf("Start err = %v, want ErrSourceClosed", err)
	}
}
