package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/MrWong99/wakepipe/pkg/provider/stt"
	"github.com/MrWong99/wakepipe/pkg/provider/stt/whisper"
)

// nativeEngine loads the model named by WHISPER_MODEL_PATH or skips.
func nativeEngine(t *testing.T, opts ...whisper.NativeOption) *whisper.NativeEngine {
	t.Helper()
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	e, err := whisper.NewNative(path, opts...)
	if err != nil {
		t.Fatalf("NewNative(%s): %v", path, err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewNative_BadModelPath(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/ggml-base.en.bin"} {
		if e, err := whisper.NewNative(path); err == nil {
			_ = e.Close()
			t.Errorf("NewNative(%q) succeeded", path)
		}
	}
}

func TestNative_QuietUtterance(t *testing.T) {
	e := nativeEngine(t, whisper.WithNativeLanguage("en"), whisper.WithNativeThreads(2))
	if e.Name() != "whisper-native" {
		t.Errorf("Name() = %q", e.Name())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1.5 s of silence at 16 kHz mono, the shape of a capture that timed out.
	res, err := e.Transcribe(ctx, stt.Request{Audio: make([]byte, 48000), SampleRate: 16000, Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !res.IsEmpty() {
		t.Logf("model produced text for silence: %q", res.Text)
	}
}

func TestNative_DeadlineReturnsPromptly(t *testing.T) {
	e := nativeEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	start := time.Now()
	_, err := e.Transcribe(ctx, stt.Request{Audio: make([]byte, 32000), SampleRate: 16000})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Transcribe() = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("expired request waited for inference")
	}
}
