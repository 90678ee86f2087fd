// Package config provides the configuration schema, loader, file watcher and
// provider registry for wakepipe.
package config

import "log/slog"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown values map to
// [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Wake          WakeConfig          `yaml:"wake"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Commands      CommandsConfig      `yaml:"commands"`
	Actions       ActionsConfig       `yaml:"actions"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves /status, /trigger, /metrics and the health checks. Empty
	// disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects and shapes the microphone input.
type AudioConfig struct {
	// Source selects a registered audio source: "pcm" (raw s16le from a file
	// or "-" for stdin), "command" (raw s16le from a capture program's
	// stdout) or "wav" (file replay).
	Source string `yaml:"source"`

	// Device is the file path for pcm and wav sources.
	Device string `yaml:"device"`

	// Command is the capture program argv for the command source, for
	// example ["arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"].
	Command []string `yaml:"command"`

	// SampleRate and Channels describe the raw input. Frames are always
	// normalised to 16 kHz mono before they reach the pipeline.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameMs is the frame cadence, 10 to 30 ms.
	FrameMs int `yaml:"frame_ms"`

	// RingSize is the number of frames buffered between the source and the
	// pipeline before the oldest are dropped.
	RingSize int `yaml:"ring_size"`

	// Realtime paces file sources at the frame cadence.
	Realtime bool `yaml:"realtime"`
}

// WakeConfig configures wake-word detection.
type WakeConfig struct {
	// Phrases are the accepted wake phrases, matched case-insensitively.
	Phrases []string `yaml:"phrases"`

	// ConfidenceThreshold in [0, 1].
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// CooldownMs suppresses re-triggering after a detection.
	CooldownMs int `yaml:"cooldown_ms"`

	// Classifier selects the registered wake-word classifier.
	Classifier ProviderEntry `yaml:"classifier"`
}

// CaptureConfig bounds utterance capture.
type CaptureConfig struct {
	MaxUtteranceMs   int       `yaml:"max_utterance_ms"`
	SilenceTimeoutMs int       `yaml:"silence_timeout_ms"`
	MinSpeechMs      int       `yaml:"min_speech_ms"`
	VAD              VADConfig `yaml:"vad"`
}

// VADConfig selects the voice-activity detector used to find the end of an
// utterance. Thresholds are normalised RMS levels in [0, 1].
type VADConfig struct {
	Name             string  `yaml:"name"`
	SpeechThreshold  float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// TranscriptionConfig selects and tunes the transcription engine.
type TranscriptionConfig struct {
	// Backend selects the registered engine: "whisper" (whisper.cpp server),
	// "whisper-native" (in-process whisper.cpp) or "openai".
	Backend string `yaml:"backend"`

	// ModelID is the model name for server backends or the model file path
	// for whisper-native.
	ModelID string `yaml:"model_id"`

	Language string `yaml:"language"`

	// Prompt biases recognition towards expected vocabulary.
	Prompt string `yaml:"prompt"`

	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// Headers and Body are sent with every request to HTTP backends.
	Headers map[string]string `yaml:"headers"`
	Body    map[string]string `yaml:"body"`

	// TimeoutMs bounds one engine call.
	TimeoutMs int `yaml:"timeout_ms"`

	// MinConfidence turns less confident results into empty ones.
	MinConfidence float64 `yaml:"min_confidence"`

	// WordOverrides replaces misrecognized words, case-insensitively and on
	// whole words.
	WordOverrides map[string]string `yaml:"word_overrides"`

	// Options holds backend-specific values such as "threads".
	Options map[string]any `yaml:"options"`
}

// CommandsConfig configures execute-mode routing.
type CommandsConfig struct {
	// Prefix marks execute-mode text, for example "command ".
	Prefix string `yaml:"prefix"`

	// ActionTimeoutMs bounds how long the pipeline waits for a dispatched
	// command before listening again.
	ActionTimeoutMs int `yaml:"action_timeout_ms"`

	// Bindings maps spoken phrases to actions.
	Bindings map[string]BindingConfig `yaml:"bindings"`
}

// BindingConfig is the action bound to one phrase.
type BindingConfig struct {
	Action string   `yaml:"action"`
	Args   []string `yaml:"args"`
}

// ActionsConfig defines how text is injected and how actions run.
type ActionsConfig struct {
	// DryRun logs commands instead of performing them.
	DryRun bool `yaml:"dry_run"`

	Inject  InjectConfig  `yaml:"inject"`
	Execute ExecuteConfig `yaml:"execute"`
}

// InjectConfig is the text injection program. An argv element containing
// "{text}" receives the text; otherwise it is written to stdin.
type InjectConfig struct {
	Argv []string `yaml:"argv"`
}

// ExecuteConfig maps action identifiers to argv templates. An element equal
// to "{args}" expands to the spoken arguments; otherwise they are appended.
type ExecuteConfig struct {
	ArgvByAction map[string][]string `yaml:"argv_by_action"`
}

// ProviderEntry is the common configuration block for pluggable components.
// Name looks up the constructor in the [Registry].
type ProviderEntry struct {
	Name string `yaml:"name"`

	// Options holds provider-specific values. Values may be strings,
	// numbers, booleans or nested maps.
	Options map[string]any `yaml:"options"`
}
