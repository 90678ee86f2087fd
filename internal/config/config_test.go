package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/wakepipe/internal/config"
	"github.com/MrWong99/wakepipe/pkg/audio"
	audiomock "github.com/MrWong99/wakepipe/pkg/audio/mock"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
	sttmock "github.com/MrWong99/wakepipe/pkg/provider/stt/mock"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
	vadmock "github.com/MrWong99/wakepipe/pkg/provider/vad/mock"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
	wakemock "github.com/MrWong99/wakepipe/pkg/provider/wakeword/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: "127.0.0.1:9700"
  log_level: debug

audio:
  source: command
  command: ["arecord", "-q", "-f", "S16_LE", "-r", "48000", "-c", "2", "-t", "raw"]
  sample_rate: 48000
  channels: 2
  frame_ms: 30

wake:
  phrases: ["hey computer", "okay computer"]
  confidence_threshold: 0.7
  cooldown_ms: 2000
  classifier:
    name: phonetic
    options:
      window_ms: 1500

capture:
  max_utterance_ms: 8000
  silence_timeout_ms: 800
  min_speech_ms: 200
  vad:
    speech_threshold: 0.05

transcription:
  backend: openai
  model_id: whisper-1
  language: en
  api_key: sk-test
  timeout_ms: 10000
  min_confidence: 0.3
  word_overrides:
    "fire fox": firefox

commands:
  prefix: "computer "
  action_timeout_ms: 3000
  bindings:
    "open browser":
      action: browser
    "open":
      action: launch

actions:
  inject:
    argv: ["xdotool", "type", "--", "{text}"]
  execute:
    argv_by_action:
      browser: ["firefox"]
      launch: ["gtk-launch", "{args}"]
`

func mustLoad(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_FullDocument(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != "127.0.0.1:9700" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Audio.Source != "command" || len(cfg.Audio.Command) != 10 {
		t.Errorf("audio: got source=%q command=%v", cfg.Audio.Source, cfg.Audio.Command)
	}
	if cfg.Audio.Device != "" {
		t.Errorf("command source should not get a default device, got %q", cfg.Audio.Device)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 || cfg.Audio.FrameMs != 30 {
		t.Errorf("audio format: got %+v", cfg.Audio)
	}
	if !slices.Equal(cfg.Wake.Phrases, []string{"hey computer", "okay computer"}) {
		t.Errorf("phrases: got %v", cfg.Wake.Phrases)
	}
	if cfg.Wake.Classifier.Options["window_ms"] != 1500 {
		t.Errorf("classifier options: got %v", cfg.Wake.Classifier.Options)
	}
	if cfg.Capture.VAD.Name != config.DefaultVAD {
		t.Errorf("vad name: got %q, want default %q", cfg.Capture.VAD.Name, config.DefaultVAD)
	}
	if cfg.Capture.VAD.SilenceThreshold != 0.025 {
		t.Errorf("silence threshold: got %v, want half of speech threshold", cfg.Capture.VAD.SilenceThreshold)
	}
	if cfg.Transcription.Backend != "openai" || cfg.Transcription.BaseURL != "" {
		t.Errorf("openai backend must not get the whisper URL: %+v", cfg.Transcription)
	}
	if cfg.Transcription.WordOverrides["fire fox"] != "firefox" {
		t.Errorf("word_overrides: got %v", cfg.Transcription.WordOverrides)
	}
	if got := cfg.Commands.Bindings["open browser"].Action; got != "browser" {
		t.Errorf("binding action: got %q", got)
	}
	if cfg.Actions.Inject.Argv[0] != "xdotool" {
		t.Errorf("inject argv: got %v", cfg.Actions.Inject.Argv)
	}
}

func TestLoadFromReader_EmptyDocumentNeedsPhrases(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for missing wake phrases")
	}
	if !strings.Contains(err.Error(), "wake.phrases") {
		t.Errorf("error should mention wake.phrases, got: %v", err)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "wake:\n  phrases: [\"hey computer\"]\n")

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"audio.source", cfg.Audio.Source, config.DefaultAudioSource},
		{"audio.device", cfg.Audio.Device, config.DefaultDevice},
		{"audio.sample_rate", cfg.Audio.SampleRate, config.DefaultSampleRate},
		{"audio.channels", cfg.Audio.Channels, 1},
		{"audio.frame_ms", cfg.Audio.FrameMs, config.DefaultFrameMs},
		{"audio.ring_size", cfg.Audio.RingSize, config.DefaultRingSize},
		{"wake.threshold", cfg.Wake.ConfidenceThreshold, config.DefaultThreshold},
		{"wake.cooldown_ms", cfg.Wake.CooldownMs, config.DefaultCooldownMs},
		{"wake.classifier", cfg.Wake.Classifier.Name, config.DefaultClassifier},
		{"capture.max_utterance_ms", cfg.Capture.MaxUtteranceMs, config.DefaultMaxUtteranceMs},
		{"capture.silence_timeout_ms", cfg.Capture.SilenceTimeoutMs, config.DefaultSilenceTimeoutMs},
		{"capture.min_speech_ms", cfg.Capture.MinSpeechMs, config.DefaultMinSpeechMs},
		{"transcription.backend", cfg.Transcription.Backend, config.DefaultBackend},
		{"transcription.base_url", cfg.Transcription.BaseURL, config.DefaultWhisperURL},
		{"transcription.timeout_ms", cfg.Transcription.TimeoutMs, config.DefaultTimeoutMs},
		{"commands.prefix", cfg.Commands.Prefix, config.DefaultPrefix},
		{"commands.action_timeout_ms", cfg.Commands.ActionTimeoutMs, config.DefaultActionTimeoutMs},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
	if !slices.Equal(cfg.Actions.Inject.Argv, config.DefaultInjectArgv) {
		t.Errorf("inject argv: got %v", cfg.Actions.Inject.Argv)
	}
}

func TestApplyDefaults_DoesNotAliasInjectArgv(t *testing.T) {
	t.Parallel()
	a := &config.Config{}
	config.ApplyDefaults(a)
	a.Actions.Inject.Argv[0] = "changed"

	if config.DefaultInjectArgv[0] != "wtype" {
		t.Fatalf("DefaultInjectArgv was mutated: %v", config.DefaultInjectArgv)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("wake:\n  phrases: [a]\n  treshold: 0.5\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Commands.Prefix != "computer " {
		t.Errorf("prefix: got %q", cfg.Commands.Prefix)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	got, err := config.DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath: %v", err)
	}
	if want := filepath.Join("/tmp/xdg", "wakepipe", "config.yaml"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.SlogLevel(); got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_CreateAndNames(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	engine := &sttmock.Engine{}
	reg.RegisterSTT("mock", func(c config.TranscriptionConfig) (stt.Engine, error) {
		if c.ModelID != "tiny" {
			t.Errorf("factory got model %q", c.ModelID)
		}
		return engine, nil
	})
	reg.RegisterClassifier("mock", func(c config.WakeConfig, e stt.Engine) (wakeword.Classifier, error) {
		if e != engine {
			t.Error("classifier factory did not receive the engine")
		}
		return &wakemock.Classifier{}, nil
	})
	reg.RegisterVAD("mock", func(config.VADConfig) (vad.Engine, error) { return &vadmock.Engine{}, nil })
	reg.RegisterAudio("mock", func(config.AudioConfig) (audio.Source, error) { return audiomock.NewSource(1), nil })
	reg.RegisterAudio("another", func(config.AudioConfig) (audio.Source, error) { return audiomock.NewSource(1), nil })

	got, err := reg.CreateSTT(config.TranscriptionConfig{Backend: "mock", ModelID: "tiny"})
	if err != nil || got != engine {
		t.Fatalf("CreateSTT: got %v, %v", got, err)
	}
	if _, err := reg.CreateClassifier(config.WakeConfig{Classifier: config.ProviderEntry{Name: "mock"}}, got); err != nil {
		t.Fatalf("CreateClassifier: %v", err)
	}
	if _, err := reg.CreateVAD(config.VADConfig{Name: "mock"}); err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if _, err := reg.CreateAudio(config.AudioConfig{Source: "mock"}); err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}

	if names := reg.Names("audio"); !slices.Equal(names, []string{"another", "mock"}) {
		t.Errorf("Names(audio): got %v", names)
	}
	if names := reg.Names("bogus"); len(names) != 0 {
		t.Errorf("Names(bogus): got %v", names)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	errs := []error{}
	_, err := reg.CreateSTT(config.TranscriptionConfig{Backend: "nope"})
	errs = append(errs, err)
	_, err = reg.CreateClassifier(config.WakeConfig{}, nil)
	errs = append(errs, err)
	_, err = reg.CreateVAD(config.VADConfig{Name: "nope"})
	errs = append(errs, err)
	_, err = reg.CreateAudio(config.AudioConfig{Source: "nope"})
	errs = append(errs, err)

	for i, err := range errs {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("case %d: expected ErrProviderNotRegistered, got %v", i, err)
		}
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterVAD("broken", func(config.VADConfig) (vad.Engine, error) { return nil, boom })

	if _, err := reg.CreateVAD(config.VADConfig{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	cmd := config.Snapshot(cfg).Router.RouteText("command open terminal")
	if cmd.ActionID != "terminal" {
		t.Errorf("example binding: got %+v", cmd)
	}
}
