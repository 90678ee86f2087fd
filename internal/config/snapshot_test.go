package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/wakepipe/internal/command"
	"github.com/MrWong99/wakepipe/internal/config"
)

func TestSnapshot(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)
	snap := config.Snapshot(cfg)

	if !slices.Equal(snap.Wake.Phrases, cfg.Wake.Phrases) || snap.Wake.Threshold != 0.7 || snap.Wake.Cooldown != 2*time.Second {
		t.Errorf("wake: got %+v", snap.Wake)
	}
	if snap.Capture.MaxUtterance != 8*time.Second || snap.Capture.SilenceTimeout != 800*time.Millisecond {
		t.Errorf("capture: got %+v", snap.Capture)
	}
	if snap.Capture.VAD.SampleRate != config.PipelineSampleRate || snap.Capture.VAD.FrameSizeMs != 30 {
		t.Errorf("vad: got %+v", snap.Capture.VAD)
	}
	if snap.Transcribe.ModelID != "whisper-1" || snap.Transcribe.Timeout != 10*time.Second {
		t.Errorf("transcribe: got %+v", snap.Transcribe)
	}
	if got := snap.Transcribe.Overrides.Apply("open fire fox"); got != "open firefox" {
		t.Errorf("overrides: got %q", got)
	}
	if snap.ActionTimeout != 3*time.Second {
		t.Errorf("action timeout: got %v", snap.ActionTimeout)
	}

	// Longest binding wins over the shorter "open".
	cmd := snap.Router.RouteText("computer open browser")
	if cmd.Mode != command.ModeExecute || cmd.ActionID != "browser" {
		t.Errorf("route: got %+v", cmd)
	}
	cmd = snap.Router.RouteText("computer open terminal")
	if cmd.ActionID != "launch" || !slices.Equal(cmd.Args, []string{"terminal"}) {
		t.Errorf("route with args: got %+v", cmd)
	}
}

func TestSnapshot_DoesNotAliasConfig(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)
	snap := config.Snapshot(cfg)
	cfg.Wake.Phrases[0] = "mutated"

	if snap.Wake.Phrases[0] != "hey computer" {
		t.Errorf("snapshot shares the phrase slice with the config")
	}
}
