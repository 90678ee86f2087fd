// Package mock provides in-memory doubles for the action collaborators.
//
// Recorder records every Inject and Execute call. Set Block to make calls
// wait until the channel is closed or the context ends; this models a hung
// action.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/wakepipe/internal/action"
)

// Execution is one recorded Execute call.
type Execution struct {
	ActionID string
	Args     []string
}

// Recorder implements both action.Injector and action.Executor.
type Recorder struct {
	mu sync.Mutex

	// InjectErr is returned from every Inject call.
	InjectErr error

	// ExitStatus and ExecuteErr are returned from every Execute call.
	ExitStatus int
	ExecuteErr error

	// Block, when non-nil, is waited on before returning.
	Block chan struct{}

	// Called is signalled (non-blocking) when any call begins.
	Called chan struct{}

	injected []string
	executed []Execution
}

var (
	_ action.Injector = (*Recorder)(nil)
	_ action.Executor = (*Recorder)(nil)
)

func (r *Recorder) Inject(ctx context.Context, text string) error {
	r.mu.Lock()
	r.injected = append(r.injected, text)
	err := r.InjectErr
	r.mu.Unlock()
	if werr := r.wait(ctx); werr != nil {
		return werr
	}
	return err
}

func (r *Recorder) Execute(ctx context.Context, actionID string, args []string) (int, error) {
	r.mu.Lock()
	r.executed = append(r.executed, Execution{ActionID: actionID, Args: slices.Clone(args)})
	status, err := r.ExitStatus, r.ExecuteErr
	r.mu.Unlock()
	if werr := r.wait(ctx); werr != nil {
		return -1, werr
	}
	return status, err
}

func (r *Recorder) wait(ctx context.Context) error {
	r.mu.Lock()
	block, called := r.Block, r.Called
	r.mu.Unlock()
	if called != nil {
		select {
		case called <- struct{}{}:
		default:
		}
	}
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Injected returns a copy of every injected text in call order.
func (r *Recorder) Injected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.injected)
}

// Executed returns a copy of every execution in call order.
func (r *Recorder) Executed() []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.executed)
}
