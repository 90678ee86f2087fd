// Package wavfile replays a 16-bit PCM WAV file as an [audio.Source]. It is
// used for offline runs and as a fixture source in tests.
package wavfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/audio/pcm"
)

// Open reads the WAV file at path and returns a source replaying it. Stream
// options (frame duration, ring size, pacing) are passed through to the
// underlying [pcm.Source]; the stream format is taken from the file header.
func Open(path string, opts ...pcm.Option) (*pcm.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &audio.DeviceError{Device: path, Err: err}
	}
	return FromBytes(path, data, opts...)
}

// FromBytes returns a source replaying an in-memory WAV file.
func FromBytes(name string, data []byte, opts ...pcm.Option) (*pcm.Source, error) {
	samples, format, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, &audio.DeviceError{Device: name, Err: fmt.Errorf("wavfile: %w", err)}
	}
	opts = append([]pcm.Option{pcm.WithFormat(format)}, opts...)
	return pcm.New(name, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(samples)), nil
	}, opts...), nil
}
