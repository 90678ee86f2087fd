// Package stt defines the Engine interface for batch speech-to-text backends.
//
// An Engine receives one complete utterance as 16-bit mono PCM and returns the
// recognized text. Engines may run in-process (whisper.cpp bindings), talk to a
// local model-serving process (whisper-server) or call a hosted API.
//
// A failed call returns a non-nil error. A call that succeeded but heard
// nothing returns a zero-value Result and a nil error; callers must treat
// these two cases differently.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Engine is the transcription backend boundary.
type Engine interface {
	// Transcribe submits req and blocks until the engine answers, the call
	// fails, or ctx is cancelled. Engines that support cancellation abort the
	// request when ctx is done; others return ctx.Err() once it is.
	Transcribe(ctx context.Context, req Request) (Result, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}
