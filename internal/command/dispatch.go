package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/wakepipe/internal/action"
)

// Dispatcher hands resolved commands to the action collaborators. It holds
// no process-spawning logic of its own.
type Dispatcher struct {
	injector action.Injector
	executor action.Executor
}

// NewDispatcher returns a dispatcher for the given collaborators.
func NewDispatcher(inj action.Injector, exec action.Executor) *Dispatcher {
	return &Dispatcher{injector: inj, executor: exec}
}

// Dispatch performs cmd once. Type-mode commands call Inject with the text;
// recognized execute-mode commands call Execute with the bound action. The
// returned status is the action's exit status, or zero for type mode. Invalid
// commands return their validation error and touch nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (int, error) {
	if err := cmd.Err(); err != nil {
		return 0, err
	}
	switch cmd.Mode {
	case ModeType:
		if err := d.injector.Inject(ctx, cmd.Text); err != nil {
			return 0, fmt.Errorf("command: inject: %w", err)
		}
		return 0, nil
	case ModeExecute:
		status, err := d.executor.Execute(ctx, cmd.ActionID, cmd.Args)
		if err != nil {
			var ee *action.ExecutionError
			if !errors.As(err, &ee) {
				err = &action.ExecutionError{ActionID: cmd.ActionID, ExitStatus: status, Err: err}
			}
			return status, fmt.Errorf("command: execute: %w", err)
		}
		if status != 0 {
			return status, fmt.Errorf("command: execute: %w", &action.ExecutionError{ActionID: cmd.ActionID, ExitStatus: status})
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("command: unknown mode %s", cmd.Mode)
	}
}
