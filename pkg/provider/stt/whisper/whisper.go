// Package whisper provides whisper.cpp-backed transcription engines.
//
// [Engine] talks to a running whisper-server (POST /inference) or to any
// REST endpoint that accepts the same multipart upload: a "file" field
// holding a WAV file plus optional "language", "model" and "prompt" fields,
// answered with a JSON object carrying "text".
//
// [NativeEngine] links whisper.cpp directly through its CGO bindings and
// loads the model once at startup.
//
// Usage:
//
//	e, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithHeader("Authorization", "Bearer "+token),
//	)
//	res, err := e.Transcribe(ctx, stt.Request{Audio: pcm, SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
)

const (
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// Compile-time assertion that Engine implements stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// StatusError reports a non-200 answer from the server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("whisper: server returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("whisper: server returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithModel sets the default model forwarded in the "model" field. Empty (the
// default) lets the server use the model it was started with. A non-empty
// stt.Request.ModelID takes precedence.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithLanguage sets the default language hint. A non-empty
// stt.Request.Language takes precedence.
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithHeader adds an HTTP header to every request.
func WithHeader(key, value string) Option {
	return func(e *Engine) { e.headers.Add(key, value) }
}

// WithBodyField adds a form field to every request. Fields set this way are
// written before the per-request fields.
func WithBodyField(key, value string) Option {
	return func(e *Engine) { e.fields = append(e.fields, [2]string{key, value}) }
}

// WithTimeout sets the HTTP client timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// Engine implements stt.Engine over HTTP.
type Engine struct {
	endpoint   string
	model      string
	language   string
	headers    http.Header
	fields     [][2]string
	httpClient *http.Client
}

// New creates an Engine posting to serverURL. A URL without a path (e.g.
// "http://localhost:8080") targets whisper-server's /inference endpoint; a URL
// with a path is used as-is.
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("whisper: parse server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("whisper: server URL %q must be http or https", serverURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/inference"
	}

	e := &Engine{
		endpoint:   u.String(),
		headers:    make(http.Header),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements stt.Engine.
func (e *Engine) Name() string { return "whisper" }

// Endpoint returns the URL requests are posted to.
func (e *Engine) Endpoint() string { return e.endpoint }

// Transcribe encodes req.Audio as WAV and posts it as multipart/form-data.
func (e *Engine) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	wav := audio.EncodeWAV(req.Audio, sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := append([][2]string(nil), e.fields...)
	fields = append(fields,
		[2]string{"language", firstNonEmpty(req.Language, e.language)},
		[2]string{"model", firstNonEmpty(req.ModelID, e.model)},
		[2]string{"prompt", req.Prompt},
		[2]string{"response_format", "json"},
	)
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	for k, vs := range e.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stt.Result{}, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return stt.Result{}, fmt.Errorf("whisper: server error: %s", result.Error)
	}

	text := stt.CleanText(result.Text)
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
