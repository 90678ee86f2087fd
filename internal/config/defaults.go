package config

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr       = "127.0.0.1:9595"
	DefaultAudioSource      = "pcm"
	DefaultDevice           = "-"
	DefaultSampleRate       = 16000
	DefaultFrameMs          = 20
	DefaultRingSize         = 50
	DefaultThreshold        = 0.8
	DefaultCooldownMs       = 1500
	DefaultClassifier       = "phonetic"
	DefaultMaxUtteranceMs   = 15000
	DefaultSilenceTimeoutMs = 600
	DefaultMinSpeechMs      = 300
	DefaultVAD              = "energy"
	DefaultSpeechThreshold  = 0.02
	DefaultBackend          = "whisper"
	DefaultWhisperURL       = "http://127.0.0.1:8080/inference"
	DefaultTimeoutMs        = 30000
	DefaultPrefix           = "command "
	DefaultActionTimeoutMs  = 5000
)

// DefaultInjectArgv types text with wtype on Wayland.
var DefaultInjectArgv = []string{"wtype", "--", "{text}"}

// ApplyDefaults fills zero-valued fields of cfg in place. It cannot tell an
// explicit zero from an unset field; [LoadFromReader] restores the keys where
// zero is meaningful (wake.confidence_threshold, wake.cooldown_ms and
// commands.prefix) when the document sets them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.Source == "" {
		a.Source = DefaultAudioSource
	}
	if a.Device == "" && a.Source != "command" {
		a.Device = DefaultDevice
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.Channels == 0 {
		a.Channels = 1
	}
	if a.FrameMs == 0 {
		a.FrameMs = DefaultFrameMs
	}
	if a.RingSize == 0 {
		a.RingSize = DefaultRingSize
	}

	w := &cfg.Wake
	if w.ConfidenceThreshold == 0 {
		w.ConfidenceThreshold = DefaultThreshold
	}
	if w.CooldownMs == 0 {
		w.CooldownMs = DefaultCooldownMs
	}
	if w.Classifier.Name == "" {
		w.Classifier.Name = DefaultClassifier
	}

	c := &cfg.Capture
	if c.MaxUtteranceMs == 0 {
		c.MaxUtteranceMs = DefaultMaxUtteranceMs
	}
	if c.SilenceTimeoutMs == 0 {
		c.SilenceTimeoutMs = DefaultSilenceTimeoutMs
	}
	if c.MinSpeechMs == 0 {
		c.MinSpeechMs = DefaultMinSpeechMs
	}
	if c.VAD.Name == "" {
		c.VAD.Name = DefaultVAD
	}
	if c.VAD.SpeechThreshold == 0 {
		c.VAD.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.VAD.SilenceThreshold == 0 {
		c.VAD.SilenceThreshold = c.VAD.SpeechThreshold / 2
	}

	t := &cfg.Transcription
	if t.Backend == "" {
		t.Backend = DefaultBackend
	}
	if t.BaseURL == "" && t.Backend == "whisper" {
		t.BaseURL = DefaultWhisperURL
	}
	if t.TimeoutMs == 0 {
		t.TimeoutMs = DefaultTimeoutMs
	}

	if cfg.Commands.Prefix == "" {
		cfg.Commands.Prefix = DefaultPrefix
	}
	if cfg.Commands.ActionTimeoutMs == 0 {
		cfg.Commands.ActionTimeoutMs = DefaultActionTimeoutMs
	}

	if len(cfg.Actions.Inject.Argv) == 0 {
		cfg.Actions.Inject.Argv = append([]string(nil), DefaultInjectArgv...)
	}
}
