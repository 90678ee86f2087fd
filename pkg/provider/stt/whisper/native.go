// This file contains the NativeEngine implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
)

// Compile-time assertion that NativeEngine satisfies stt.Engine.
var _ stt.Engine = (*NativeEngine)(nil)

// NativeEngine implements stt.Engine in-process. The model is loaded once and
// inference calls are serialised, since a single model saturates the CPU.
type NativeEngine struct {
	model    whisperlib.Model
	language string
	threads  uint

	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeEngine.
type NativeOption func(*NativeEngine)

// WithNativeLanguage sets the default language hint. Defaults to auto
// detection.
func WithNativeLanguage(lang string) NativeOption {
	return func(e *NativeEngine) { e.language = lang }
}

// WithNativeThreads sets the number of inference threads. Zero keeps the
// whisper.cpp default.
func WithNativeThreads(n uint) NativeOption {
	return func(e *NativeEngine) { e.threads = n }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the engine is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &NativeEngine{model: model, language: "auto"}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements stt.Engine.
func (e *NativeEngine) Name() string { return "whisper-native" }

// Close releases the whisper model.
func (e *NativeEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe runs inference on req.Audio. whisper.cpp cannot be interrupted
// mid-decode; when ctx is cancelled the call returns ctx.Err() at once and the
// pending result is discarded on arrival.
func (e *NativeEngine) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	type outcome struct {
		res stt.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.infer(ctx, req)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return stt.Result{}, ctx.Err()
	case o := <-done:
		return o.res, o.err
	}
}

func (e *NativeEngine) infer(ctx context.Context, req stt.Request) (stt.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	samples := audio.ToFloat32(req.Audio, 1)

	// Contexts are not thread-safe, but the model can be shared.
	wctx, err := e.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := firstNonEmpty(req.Language, e.language)
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}
	if e.threads > 0 {
		wctx.SetThreads(e.threads)
	}

	// Skip the encoder entirely if the caller gave up while we were queued.
	encoderBegin := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, encoderBegin, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		pSum  float64
		pN    int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			if strings.HasPrefix(tok.Text, "[_") {
				continue
			}
			pSum += float64(tok.P)
			pN++
		}
	}

	text := stt.CleanText(strings.Join(parts, " "))
	if text == "" {
		return stt.Result{}, nil
	}
	conf := 1.0
	if pN > 0 {
		conf = pSum / float64(pN)
	}
	return stt.Result{Text: text, Confidence: conf}, nil
}
