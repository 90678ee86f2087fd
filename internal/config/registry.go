package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory signatures per provider kind.
type (
	STTFactory        func(TranscriptionConfig) (stt.Engine, error)
	ClassifierFactory func(WakeConfig, stt.Engine) (wakeword.Classifier, error)
	VADFactory        func(VADConfig) (vad.Engine, error)
	AudioFactory      func(AudioConfig) (audio.Source, error)
)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        map[string]STTFactory
	classifier map[string]ClassifierFactory
	vad        map[string]VADFactory
	audio      map[string]AudioFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        make(map[string]STTFactory),
		classifier: make(map[string]ClassifierFactory),
		vad:        make(map[string]VADFactory),
		audio:      make(map[string]AudioFactory),
	}
}

// RegisterSTT registers a transcription engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterClassifier registers a wake-word classifier factory under name.
func (r *Registry) RegisterClassifier(name string, factory ClassifierFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterAudio registers an audio source factory under name.
func (r *Registry) RegisterAudio(name string, factory AudioFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateSTT instantiates the engine registered under cfg.Backend.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateSTT(cfg TranscriptionConfig) (stt.Engine, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcription/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateClassifier instantiates the classifier registered under
// cfg.Classifier.Name. engine is the transcription engine for classifiers
// that need one.
func (r *Registry) CreateClassifier(cfg WakeConfig, engine stt.Engine) (wakeword.Classifier, error) {
	r.mu.RLock()
	factory, ok := r.classifier[cfg.Classifier.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: classifier/%q", ErrProviderNotRegistered, cfg.Classifier.Name)
	}
	return factory(cfg, engine)
}

// CreateVAD instantiates the VAD engine registered under cfg.Name.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateAudio instantiates the audio source registered under cfg.Source.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, cfg.Source)
	}
	return factory(cfg)
}

// Names returns the registered names for kind ("transcription",
// "classifier", "vad" or "audio") in sorted order.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "transcription":
		for n := range r.stt {
			names = append(names, n)
		}
	case "classifier":
		for n := range r.classifier {
			names = append(names, n)
		}
	case "vad":
		for n := range r.vad {
			names = append(names, n)
		}
	case "audio":
		for n := range r.audio {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
