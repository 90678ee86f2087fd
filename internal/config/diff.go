package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is set when a hot-reloadable pipeline setting changed:
	// wake phrases, threshold or cooldown, capture bounds and VAD
	// thresholds, transcription model, language, prompt, timeout,
	// confidence or overrides, and the command prefix, timeout or bindings.
	PipelineChanged bool

	// RestartRequired lists changed sections that only take effect after a
	// restart, such as the audio source or the transcription backend.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PipelineChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ow, nw := old.Wake, new.Wake
	oc, nc := old.Capture, new.Capture
	ot, nt := old.Transcription, new.Transcription
	if !slices.Equal(ow.Phrases, nw.Phrases) ||
		ow.ConfidenceThreshold != nw.ConfidenceThreshold ||
		ow.CooldownMs != nw.CooldownMs ||
		oc.MaxUtteranceMs != nc.MaxUtteranceMs ||
		oc.SilenceTimeoutMs != nc.SilenceTimeoutMs ||
		oc.MinSpeechMs != nc.MinSpeechMs ||
		oc.VAD.SpeechThreshold != nc.VAD.SpeechThreshold ||
		oc.VAD.SilenceThreshold != nc.VAD.SilenceThreshold ||
		ot.ModelID != nt.ModelID ||
		ot.Language != nt.Language ||
		ot.Prompt != nt.Prompt ||
		ot.TimeoutMs != nt.TimeoutMs ||
		ot.MinConfidence != nt.MinConfidence ||
		!maps.Equal(ot.WordOverrides, nt.WordOverrides) ||
		!reflect.DeepEqual(old.Commands, new.Commands) {
		d.PipelineChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Audio, new.Audio) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !reflect.DeepEqual(ow.Classifier, nw.Classifier) {
		d.RestartRequired = append(d.RestartRequired, "wake.classifier")
	}
	if oc.VAD.Name != nc.VAD.Name {
		d.RestartRequired = append(d.RestartRequired, "capture.vad.name")
	}
	if ot.Backend != nt.Backend ||
		ot.BaseURL != nt.BaseURL ||
		ot.APIKey != nt.APIKey ||
		!maps.Equal(ot.Headers, nt.Headers) ||
		!maps.Equal(ot.Body, nt.Body) ||
		!reflect.DeepEqual(ot.Options, nt.Options) {
		d.RestartRequired = append(d.RestartRequired, "transcription.backend")
	}
	if !reflect.DeepEqual(old.Actions, new.Actions) {
		d.RestartRequired = append(d.RestartRequired, "actions")
	}

	return d
}
