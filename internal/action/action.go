// Package action defines the two side-effecting collaborators a command ends
// in: an [Injector] that types text into the focused window and an [Executor]
// that runs a configured action.
//
// The implementations in this package launch external programs from argv
// templates with os/exec. They never go through a shell, so recognized text
// cannot be interpreted as shell syntax.
package action

import (
	"context"
	"errors"
	"fmt"
)

// Injector types text as if it had been entered on the keyboard.
type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Executor runs the action with the given identifier.
type Executor interface {
	// Execute returns the action's exit status. A non-zero status is
	// reported as an *ExecutionError as well.
	Execute(ctx context.Context, actionID string, args []string) (int, error)
}

// ErrUnknownAction is returned by executors for an action they have no
// definition for.
var ErrUnknownAction = errors.New("action: unknown action")

// ExecutionError reports a failed action. ExitStatus is -1 when the program
// could not be started or was killed.
type ExecutionError struct {
	ActionID   string
	ExitStatus int
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("action %q: exit status %d", e.ActionID, e.ExitStatus)
	}
	return fmt.Sprintf("action %q: exit status %d: %v", e.ActionID, e.ExitStatus, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
