package config

import (
	"maps"
	"slices"
	"time"

	"github.com/MrWong99/wakepipe/internal/capture"
	"github.com/MrWong99/wakepipe/internal/command"
	"github.com/MrWong99/wakepipe/internal/pipeline"
	"github.com/MrWong99/wakepipe/internal/transcribe"
	"github.com/MrWong99/wakepipe/internal/wakeword"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
)

// PipelineSampleRate is the rate every audio source normalises to.
const PipelineSampleRate = 16000

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Snapshot derives the immutable pipeline settings from cfg. Call it once per
// loaded config; the result shares nothing with cfg.
func Snapshot(cfg *Config) *pipeline.Config {
	bindings := make([]command.Binding, 0, len(cfg.Commands.Bindings))
	for _, phrase := range slices.Sorted(maps.Keys(cfg.Commands.Bindings)) {
		b := cfg.Commands.Bindings[phrase]
		bindings = append(bindings, command.Binding{
			Phrase: phrase,
			Action: b.Action,
			Args:   slices.Clone(b.Args),
		})
	}

	return &pipeline.Config{
		Wake: wakeword.Settings{
			Phrases:   slices.Clone(cfg.Wake.Phrases),
			Threshold: cfg.Wake.ConfidenceThreshold,
			Cooldown:  ms(cfg.Wake.CooldownMs),
		},
		Capture: capture.Settings{
			MaxUtterance:   ms(cfg.Capture.MaxUtteranceMs),
			SilenceTimeout: ms(cfg.Capture.SilenceTimeoutMs),
			MinSpeech:      ms(cfg.Capture.MinSpeechMs),
			VAD: vad.Config{
				SampleRate:       PipelineSampleRate,
				FrameSizeMs:      cfg.Audio.FrameMs,
				SpeechThreshold:  cfg.Capture.VAD.SpeechThreshold,
				SilenceThreshold: cfg.Capture.VAD.SilenceThreshold,
			},
		},
		Transcribe: transcribe.Settings{
			ModelID:       cfg.Transcription.ModelID,
			Language:      cfg.Transcription.Language,
			Prompt:        cfg.Transcription.Prompt,
			Timeout:       ms(cfg.Transcription.TimeoutMs),
			MinConfidence: cfg.Transcription.MinConfidence,
			Overrides:     transcribe.NewOverrides(cfg.Transcription.WordOverrides),
		},
		Router: command.NewRouter(command.Settings{
			Prefix:   cfg.Commands.Prefix,
			Bindings: bindings,
		}),
		ActionTimeout: ms(cfg.Commands.ActionTimeoutMs),
	}
}
