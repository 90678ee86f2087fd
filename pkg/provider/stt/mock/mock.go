// Package mock provides a test double for the stt.Engine interface.
//
// Engine answers from a queue of scripted responses and records every request.
// Set Block to make Transcribe wait until the channel is closed or the context
// is cancelled; this models a slow engine.
//
// Example:
//
//	eng := &mock.Engine{Responses: []mock.Response{{Result: stt.Result{Text: "hello", Confidence: 1}}}}
//	res, err := eng.Transcribe(ctx, stt.Request{Audio: pcm})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wakepipe/pkg/provider/stt"
)

// Response is one scripted answer.
type Response struct {
	Result stt.Result
	Err    error
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// EngineName is returned by Name. Defaults to "mock".
	EngineName string

	// Responses are consumed in order, one per call.
	Responses []Response

	// Default is returned once Responses is exhausted.
	Default Response

	// Block, when non-nil, is waited on before answering.
	Block chan struct{}

	// Calls records every request in order. Audio is copied.
	Calls []stt.Request

	// Started is signalled (non-blocking) whenever a call begins.
	Started chan struct{}
}

// Transcribe records the call and returns the next scripted response.
func (e *Engine) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	e.mu.Lock()
	cp := req
	cp.Audio = append([]byte(nil), req.Audio...)
	e.Calls = append(e.Calls, cp)

	resp := e.Default
	if len(e.Responses) > 0 {
		resp = e.Responses[0]
		e.Responses = e.Responses[1:]
	}
	block, started := e.Block, e.Started
	e.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	return resp.Result, resp.Err
}

// Name implements stt.Engine.
func (e *Engine) Name() string {
	if e.EngineName == "" {
		return "mock"
	}
	return e.EngineName
}

// CallCount returns how many times Transcribe was called.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// Requests returns a copy of the recorded requests.
func (e *Engine) Requests() []stt.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]stt.Request(nil), e.Calls...)
}

var _ stt.Engine = (*Engine)(nil)
