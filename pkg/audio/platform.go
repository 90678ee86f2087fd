// Package audio defines the frame type, the [Source] abstraction over input
// devices, and the PCM helpers shared by every stage of the wake pipeline.
//
// A [Source] produces an unbounded, strictly ordered sequence of
// [AudioFrame] values at a fixed cadence until it is closed. Sources never
// block on a slow consumer: frames are published through a [FrameRing] that
// drops the oldest unconsumed frame and counts the drop.
//
// Concrete sources live in sub-packages (audio/pcm, audio/wavfile). Device
// selection and sample-rate negotiation are left to the process that opens
// the underlying stream; wakepipe only sees bytes.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrSourceClosed is returned by [Source.Start] after [Source.Close].
var ErrSourceClosed = errors.New("audio: source closed")

// DeviceError reports that the audio input device is unavailable or failed
// while streaming. It is fatal to the pipeline.
type DeviceError struct {
	// Device names the input (path, "stdin", device id).
	Device string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: device %q: %v", e.Device, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error { return e.Err }

// IsDeviceError reports whether err (or anything it wraps) is a [*DeviceError].
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// Source is the entry point for audio input.
//
// Implementations must be safe for concurrent use of Dropped, Err and Close
// while the frame channel is being consumed.
type Source interface {
	// Start opens the device and begins producing frames. The returned channel
	// delivers frames in strictly increasing Seq order and is closed when the
	// source stops (ctx cancelled, Close called, or device failure).
	//
	// An unavailable device is reported as a [*DeviceError].
	Start(ctx context.Context) (<-chan AudioFrame, error)

	// Err returns the error that stopped the stream, or nil after a clean stop.
	// A non-nil value is always a [*DeviceError].
	Err() error

	// Dropped returns how many frames were discarded because the consumer fell
	// behind.
	Dropped() uint64

	// Close stops the source and releases the device. It is safe to call Close
	// more than once.
	Close() error
}
