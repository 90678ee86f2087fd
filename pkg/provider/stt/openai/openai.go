// Package openai provides a transcription engine backed by the OpenAI audio
// transcription API. Any server implementing the same endpoint (Groq,
// LocalAI, faster-whisper-server) works through WithBaseURL.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

// Ensure Engine implements the stt.Engine interface.
var _ stt.Engine = (*Engine)(nil)

// Engine implements stt.Engine using the OpenAI API.
type Engine struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the engine.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
	headers  map[string]string
}

// Option is a functional option for Engine.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default language hint.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHeader adds an HTTP header to every request.
func WithHeader(key, value string) Option {
	return func(c *config) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[key] = value
	}
}

// New constructs an OpenAI transcription Engine.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// A misfire needs a fresh wake trigger; never resend audio.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	for k, v := range cfg.headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}

	return &Engine{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Name implements stt.Engine.
func (e *Engine) Name() string { return "openai" }

// ModelID returns the default model.
func (e *Engine) ModelID() string { return e.model }

// Transcribe implements stt.Engine.
func (e *Engine) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	wav := audio.EncodeWAV(req.Audio, sampleRate, 1)

	model := e.model
	if req.ModelID != "" {
		model = req.ModelID
	}
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(model),
	}
	if lang := firstNonEmpty(req.Language, e.language); lang != "" {
		params.Language = oai.String(lang)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	text := stt.CleanText(resp.Text)
	if text == "" {
		return stt.Result{}, nil
	}
	return stt.Result{Text: text, Confidence: 1}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
