package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio":         {"pcm", "command", "wav"},
	"classifier":    {"phonetic"},
	"vad":           {"energy"},
	"transcription": {"whisper", "whisper-native", "openai"},
}

// DefaultPath returns $XDG_CONFIG_HOME/wakepipe/config.yaml, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate config dir: %w", err)
	}
	return filepath.Join(dir, "wakepipe", "config.yaml"), nil
}

// LoadOption adjusts a decoded config after defaults are applied and before
// it is validated.
type LoadOption func(*Config)

// ForceDryRun makes actions log instead of run regardless of the file.
func ForceDryRun(cfg *Config) { cfg.Actions.DryRun = true }

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string, opts ...LoadOption) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader, opts ...LoadOption) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	var set explicit
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	set.restore(cfg)
	for _, o := range opts {
		o(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// explicit records fields whose zero value is meaningful, so a key written
// as 0 or "" survives [ApplyDefaults].
type explicit struct {
	Wake struct {
		ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
		CooldownMs          *int     `yaml:"cooldown_ms"`
	} `yaml:"wake"`
	Commands struct {
		Prefix *string `yaml:"prefix"`
	} `yaml:"commands"`
}

func (e *explicit) restore(cfg *Config) {
	if v := e.Wake.ConfidenceThreshold; v != nil {
		cfg.Wake.ConfidenceThreshold = *v
	}
	if v := e.Wake.CooldownMs; v != nil {
		cfg.Wake.CooldownMs = *v
	}
	if v := e.Commands.Prefix; v != nil {
		cfg.Commands.Prefix = *v
	}
}

// Validate checks that cfg contains a coherent set of values. Call it after
// [ApplyDefaults]. It returns a joined error listing all validation failures
// found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	// Audio
	a := cfg.Audio
	validateProviderName("audio", a.Source)
	if a.FrameMs < 10 || a.FrameMs > 30 {
		add("audio.frame_ms %d is out of range [10, 30]", a.FrameMs)
	}
	if a.SampleRate <= 0 {
		add("audio.sample_rate must be positive")
	}
	if a.Channels < 1 || a.Channels > 8 {
		add("audio.channels %d is out of range [1, 8]", a.Channels)
	}
	if a.RingSize < 0 {
		add("audio.ring_size must not be negative")
	}
	if a.Source == "command" && len(a.Command) == 0 {
		add("audio.command is required when audio.source is command")
	}

	// Wake
	w := cfg.Wake
	validateProviderName("classifier", w.Classifier.Name)
	if len(w.Phrases) == 0 {
		add("wake.phrases must list at least one phrase")
	}
	for i, p := range w.Phrases {
		if strings.TrimSpace(p) == "" {
			add("wake.phrases[%d] is empty", i)
		}
	}
	if w.ConfidenceThreshold < 0 || w.ConfidenceThreshold > 1 {
		add("wake.confidence_threshold %.2f is out of range [0, 1]", w.ConfidenceThreshold)
	}
	if w.CooldownMs < 0 {
		add("wake.cooldown_ms must not be negative")
	}

	// Capture
	c := cfg.Capture
	validateProviderName("vad", c.VAD.Name)
	if c.MaxUtteranceMs <= 0 {
		add("capture.max_utterance_ms must be positive")
	}
	if c.SilenceTimeoutMs <= 0 {
		add("capture.silence_timeout_ms must be positive")
	}
	if c.MinSpeechMs < 0 {
		add("capture.min_speech_ms must not be negative")
	}
	if c.SilenceTimeoutMs >= c.MaxUtteranceMs && c.MaxUtteranceMs > 0 {
		slog.Warn("capture.silence_timeout_ms is not shorter than max_utterance_ms; every capture will time out",
			"silence_timeout_ms", c.SilenceTimeoutMs, "max_utterance_ms", c.MaxUtteranceMs)
	}
	if c.VAD.SpeechThreshold < 0 || c.VAD.SpeechThreshold > 1 {
		add("capture.vad.speech_threshold %.3f is out of range [0, 1]", c.VAD.SpeechThreshold)
	}
	if c.VAD.SilenceThreshold < 0 || c.VAD.SilenceThreshold > c.VAD.SpeechThreshold {
		add("capture.vad.silence_threshold %.3f must be in [0, speech_threshold]", c.VAD.SilenceThreshold)
	}

	// Transcription
	t := cfg.Transcription
	validateProviderName("transcription", t.Backend)
	if t.TimeoutMs < 0 {
		add("transcription.timeout_ms must not be negative")
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		add("transcription.min_confidence %.2f is out of range [0, 1]", t.MinConfidence)
	}
	if t.Backend == "whisper-native" && t.ModelID == "" {
		add("transcription.model_id must name a model file for backend whisper-native")
	}
	if t.Backend == "openai" && t.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		slog.Warn("transcription.api_key is empty and OPENAI_API_KEY is unset; requests will be rejected")
	}
	for from := range t.WordOverrides {
		if strings.TrimSpace(from) == "" {
			add("transcription.word_overrides has an empty key")
		}
	}

	// Commands
	cmds := cfg.Commands
	if cmds.ActionTimeoutMs < 0 {
		add("commands.action_timeout_ms must not be negative")
	}
	seen := make(map[string]string, len(cmds.Bindings))
	for _, phrase := range slices.Sorted(maps.Keys(cmds.Bindings)) {
		b := cmds.Bindings[phrase]
		norm := normalizePhrase(phrase)
		if norm == "" {
			add("commands.bindings has an empty phrase")
			continue
		}
		if prev, ok := seen[norm]; ok {
			add("commands.bindings %q is a duplicate of %q", phrase, prev)
		}
		seen[norm] = phrase
		if b.Action == "" {
			add("commands.bindings[%q].action is required", phrase)
			continue
		}
		if !cfg.Actions.DryRun {
			if _, ok := cfg.Actions.Execute.ArgvByAction[b.Action]; !ok {
				add("commands.bindings[%q]: action %q is not defined in actions.execute.argv_by_action", phrase, b.Action)
			}
		}
	}
	if len(cmds.Bindings) > 0 && strings.TrimSpace(cmds.Prefix) == "" {
		slog.Warn("commands.prefix is empty; execute mode is disabled and bindings are unreachable")
	}

	// Actions
	if !cfg.Actions.DryRun && len(cfg.Actions.Inject.Argv) == 0 {
		add("actions.inject.argv is required unless actions.dry_run is set")
	}
	for id, argv := range cfg.Actions.Execute.ArgvByAction {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			add("actions.execute.argv_by_action[%q] is empty", id)
		}
	}

	return errors.Join(errs...)
}

// normalizePhrase mirrors the command router's matching: lower case, single
// spaces, no punctuation around words.
func normalizePhrase(p string) string {
	var words []string
	for _, f := range strings.Fields(strings.ToLower(p)) {
		if w := strings.TrimFunc(f, unicode.IsPunct); w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
