package action

import (
	"context"
	"log/slog"
)

// DryRun logs what would have been injected or executed and does nothing
// else. Useful for tuning wake phrases and bindings without side effects.
type DryRun struct{}

var (
	_ Injector = DryRun{}
	_ Executor = DryRun{}
)

func (DryRun) Inject(_ context.Context, text string) error {
	slog.Info("action: dry-run inject", "text", text)
	return nil
}

func (DryRun) Execute(_ context.Context, actionID string, args []string) (int, error) {
	slog.Info("action: dry-run execute", "action", actionID, "args", args)
	return 0, nil
}
