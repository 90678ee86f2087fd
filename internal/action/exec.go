package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"time"
)

const (
	// TextPlaceholder in an injector argv is replaced by the text. Without it
	// the text is written to the program's stdin.
	TextPlaceholder = "{text}"

	// ArgsPlaceholder in an action argv expands to the spoken arguments, one
	// argv element each. Without it the arguments are appended.
	ArgsPlaceholder = "{args}"
)

// waitDelay bounds how long a cancelled program may keep its pipes open.
const waitDelay = 2 * time.Second

// maxOutput caps the program output kept for logging.
const maxOutput = 4 << 10

// CommandInjector injects text by running a program such as wtype, ydotool
// or wl-copy.
type CommandInjector struct {
	argv []string
}

var _ Injector = (*CommandInjector)(nil)

// NewCommandInjector validates argv and returns an injector for it.
func NewCommandInjector(argv []string) (*CommandInjector, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("action: injector argv is empty")
	}
	return &CommandInjector{argv: slices.Clone(argv)}, nil
}

// Inject runs the injector program once.
func (c *CommandInjector) Inject(ctx context.Context, text string) error {
	argv := make([]string, 0, len(c.argv))
	viaStdin := true
	for _, a := range c.argv {
		if strings.Contains(a, TextPlaceholder) {
			viaStdin = false
			a = strings.ReplaceAll(a, TextPlaceholder, text)
		}
		argv = append(argv, a)
	}
	var stdin *strings.Reader
	if viaStdin {
		stdin = strings.NewReader(text)
	}
	status, out, err := run(ctx, argv, stdin)
	if err != nil {
		return &ExecutionError{ActionID: "inject", ExitStatus: status, Err: err}
	}
	if status != 0 {
		return &ExecutionError{ActionID: "inject", ExitStatus: status, Err: outputErr(out)}
	}
	return nil
}

// CommandExecutor runs actions defined as argv templates keyed by action ID.
type CommandExecutor struct {
	actions map[string][]string
}

var _ Executor = (*CommandExecutor)(nil)

// NewCommandExecutor validates the action table.
func NewCommandExecutor(actions map[string][]string) (*CommandExecutor, error) {
	cp := make(map[string][]string, len(actions))
	var errs []error
	for id, argv := range actions {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			errs = append(errs, fmt.Errorf("action: %q has an empty argv", id))
			continue
		}
		cp[id] = slices.Clone(argv)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &CommandExecutor{actions: cp}, nil
}

// Has reports whether id is defined.
func (c *CommandExecutor) Has(id string) bool {
	_, ok := c.actions[id]
	return ok
}

// Execute runs the action and waits for it to exit or ctx to end.
func (c *CommandExecutor) Execute(ctx context.Context, actionID string, args []string) (int, error) {
	tmpl, ok := c.actions[actionID]
	if !ok {
		return -1, &ExecutionError{ActionID: actionID, ExitStatus: -1, Err: ErrUnknownAction}
	}
	argv := expandArgs(tmpl, args)
	status, out, err := run(ctx, argv, nil)
	if err != nil {
		return status, &ExecutionError{ActionID: actionID, ExitStatus: status, Err: err}
	}
	if status != 0 {
		return status, &ExecutionError{ActionID: actionID, ExitStatus: status, Err: outputErr(out)}
	}
	slog.Debug("action: executed", "action", actionID, "argv", argv, "output", out)
	return 0, nil
}

func expandArgs(tmpl, args []string) []string {
	argv := make([]string, 0, len(tmpl)+len(args))
	expanded := false
	for _, a := range tmpl {
		if a == ArgsPlaceholder {
			argv = append(argv, args...)
			expanded = true
			continue
		}
		argv = append(argv, a)
	}
	if !expanded {
		argv = append(argv, args...)
	}
	return argv
}

// run starts argv and waits. The returned error is non-nil only when the
// program could not be run to completion; a non-zero exit is a status.
func run(ctx context.Context, argv []string, stdin *strings.Reader) (int, string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = waitDelay
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var out limitedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return 0, out.String(), nil
	}
	if ctx.Err() != nil {
		return -1, out.String(), ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), out.String(), nil
	}
	return -1, out.String(), err
}

func outputErr(out string) error {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}
	return errors.New(out)
}

// limitedBuffer keeps the first maxOutput bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxOutput - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
