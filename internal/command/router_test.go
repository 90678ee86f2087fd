package command_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/wakepipe/internal/action"
	"github.com/MrWong99/wakepipe/internal/action/mock"
	"github.com/MrWong99/wakepipe/internal/command"
	"github.com/MrWong99/wakepipe/internal/transcribe"
)

func testRouter() *command.Router {
	return command.NewRouter(command.Settings{
		Prefix: "command ",
		Bindings: []command.Binding{
			{Phrase: "open browser", Action: "browser"},
			{Phrase: "open", Action: "launcher"},
			{Phrase: "open browser private", Action: "browser", Args: []string{"--private-window"}},
			{Phrase: "switch workspace", Action: "workspace"},
			{Phrase: "...", Action: "ignored"},
		},
	})
}

func ok(text string) transcribe.Result {
	return transcribe.Result{UtteranceID: "u1", Text: text, Outcome: transcribe.OutcomeOK, Confidence: 1}
}

func TestRoute(t *testing.T) {
	t.Parallel()

	r := testRouter()
	tests := []struct {
		name       string
		text       string
		mode       command.Mode
		validation command.Validation
		action     string
		binding    string
		args       []string
		payload    string
	}{
		{"type mode", "what time is it", command.ModeType, command.ValidationOK, "", "", nil, "what time is it"},
		{"type keeps bytes", "  Hello,   World!  ", command.ModeType, command.ValidationOK, "", "", nil, "  Hello,   World!  "},
		{"exact", "command open browser", command.ModeExecute, command.ValidationOK, "browser", "open browser", []string{}, "open browser"},
		{"case and punctuation", "Command, Open Browser.", command.ModeExecute, command.ValidationOK, "browser", "open browser", []string{}, "open browser"},
		{"longest prefix wins", "command open browser private", command.ModeExecute, command.ValidationOK, "browser", "open browser private", []string{"--private-window"}, "open browser private"},
		{"leftover words are args", "command switch workspace three", command.ModeExecute, command.ValidationOK, "workspace", "switch workspace", []string{"three"}, "switch workspace three"},
		{"shorter prefix", "command open terminal", command.ModeExecute, command.ValidationOK, "launcher", "open", []string{"terminal"}, "open terminal"},
		{"unrecognized", "command reboot everything", command.ModeExecute, command.ValidationUnrecognized, "", "", nil, "reboot everything"},
		{"prefix only", "command", command.ModeExecute, command.ValidationUnrecognized, "", "", nil, ""},
		{"no boundary", "commander open browser", command.ModeType, command.ValidationOK, "", "", nil, "commander open browser"},
		{"prefix must lead", "please command open browser", command.ModeType, command.ValidationOK, "", "", nil, "please command open browser"},
		{"word boundary in binding", "command openbrowser", command.ModeExecute, command.ValidationUnrecognized, "", "", nil, "openbrowser"},
		{"blank", "   ", command.ModeType, command.ValidationEmpty, "", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd := r.Route(ok(tt.text))
			if cmd.Mode != tt.mode || cmd.Validation != tt.validation {
				t.Fatalf("mode/validation = %s/%s, want %s/%s", cmd.Mode, cmd.Validation, tt.mode, tt.validation)
			}
			if cmd.ActionID != tt.action || cmd.Binding != tt.binding || cmd.Text != tt.payload {
				t.Errorf("command = %+v", cmd)
			}
			if tt.args != nil && !slices.Equal(cmd.Args, tt.args) {
				t.Errorf("args = %q, want %q", cmd.Args, tt.args)
			}
			if cmd.UtteranceID != "u1" {
				t.Errorf("utterance id = %q", cmd.UtteranceID)
			}
		})
	}
}

func TestRoute_NonOKResultIsEmpty(t *testing.T) {
	t.Parallel()

	r := testRouter()
	for _, res := range []transcribe.Result{
		{Outcome: transcribe.OutcomeEmpty},
		{Outcome: transcribe.OutcomeEngineError, Text: "command open browser"},
	} {
		cmd := r.Route(res)
		if cmd.Validation != command.ValidationEmpty || !errors.Is(cmd.Err(), command.ErrEmptyCommand) {
			t.Errorf("Route(%s) = %+v", res.Outcome, cmd)
		}
	}
}

func TestRoute_Suggestion(t *testing.T) {
	t.Parallel()

	cmd := testRouter().RouteText("command swich workspace")
	if cmd.Validation != command.ValidationUnrecognized {
		t.Fatalf("validation = %s", cmd.Validation)
	}
	if cmd.Suggestion != "switch workspace" {
		t.Errorf("suggestion = %q", cmd.Suggestion)
	}
	if err := cmd.Err(); !errors.Is(err, command.ErrUnrecognizedCommand) || !strings.Contains(err.Error(), "switch workspace") {
		t.Errorf("err = %v", err)
	}
}

func TestRoute_EmptyPrefixDisablesExecute(t *testing.T) {
	t.Parallel()

	r := command.NewRouter(command.Settings{Bindings: []command.Binding{{Phrase: "open browser", Action: "browser"}}})
	if cmd := r.RouteText("open browser"); cmd.Mode != command.ModeType {
		t.Errorf("mode = %s, want type", cmd.Mode)
	}
}

func TestRoute_PunctuationPrefix(t *testing.T) {
	t.Parallel()

	bindings := []command.Binding{{Phrase: "open browser", Action: "browser"}}
	for _, prefix := range []string{"!", "> ", "#"} {
		r := command.NewRouter(command.Settings{Prefix: prefix, Bindings: bindings})
		body := strings.TrimSpace(prefix)
		if got := r.Prefix(); got != body {
			t.Errorf("Prefix(%q) = %q, want %q", prefix, got, body)
		}
		for _, text := range []string{body + " open browser", body + "open browser"} {
			cmd := r.RouteText(text)
			if cmd.Mode != command.ModeExecute || cmd.ActionID != "browser" {
				t.Errorf("prefix %q, RouteText(%q) = %+v, want execute browser", prefix, text, cmd)
			}
		}
		if cmd := r.RouteText("open browser"); cmd.Mode != command.ModeType {
			t.Errorf("prefix %q: unprefixed text routed as %s", prefix, cmd.Mode)
		}
	}
}

// Route is a pure function of its input and the router's settings.
func TestRoute_Idempotent(t *testing.T) {
	t.Parallel()

	vocab := []string{"command", "Command,", "open", "browser", "private", "switch", "workspace", "three", "hello", "!", "  "}
	rng := rand.New(rand.NewPCG(7, 11))
	r := testRouter()
	twin := testRouter()
	for range 500 {
		n := rng.IntN(6)
		parts := make([]string, n)
		for i := range parts {
			parts[i] = vocab[rng.IntN(len(vocab))]
		}
		res := ok(strings.Join(parts, " "))
		first := r.Route(res)
		for range 3 {
			if again := r.Route(res); !again.Equal(first) {
				t.Fatalf("Route(%q) changed: %+v then %+v", res.Text, first, again)
			}
		}
		if other := twin.Route(res); !other.Equal(first) {
			t.Fatalf("Route(%q) differs between equal routers", res.Text)
		}
		if first.Mode == command.ModeType && first.Validation == command.ValidationOK && first.Text != res.Text {
			t.Fatalf("type payload %q != text %q", first.Text, res.Text)
		}
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	r := testRouter()

	t.Run("execute scenario", func(t *testing.T) {
		t.Parallel()
		rec := &mock.Recorder{}
		d := command.NewDispatcher(rec, rec)
		status, err := d.Dispatch(context.Background(), r.Route(ok("command open browser")))
		if err != nil || status != 0 {
			t.Fatalf("Dispatch: %d %v", status, err)
		}
		if got := rec.Executed(); len(got) != 1 || got[0].ActionID != "browser" {
			t.Errorf("executed = %+v", got)
		}
		if len(rec.Injected()) != 0 {
			t.Errorf("injected = %q, want none", rec.Injected())
		}
	})

	t.Run("type scenario", func(t *testing.T) {
		t.Parallel()
		rec := &mock.Recorder{}
		d := command.NewDispatcher(rec, rec)
		if _, err := d.Dispatch(context.Background(), r.Route(ok("what time is it"))); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if got := rec.Injected(); len(got) != 1 || got[0] != "what time is it" {
			t.Errorf("injected = %q", got)
		}
		if len(rec.Executed()) != 0 {
			t.Errorf("executed = %+v, want none", rec.Executed())
		}
	})

	t.Run("unrecognized never types or executes", func(t *testing.T) {
		t.Parallel()
		rec := &mock.Recorder{}
		d := command.NewDispatcher(rec, rec)
		_, err := d.Dispatch(context.Background(), r.Route(ok("command format disk")))
		if !errors.Is(err, command.ErrUnrecognizedCommand) {
			t.Errorf("err = %v", err)
		}
		if len(rec.Injected())+len(rec.Executed()) != 0 {
			t.Error("unrecognized command reached a collaborator")
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		t.Parallel()
		rec := &mock.Recorder{ExitStatus: 2}
		d := command.NewDispatcher(rec, rec)
		status, err := d.Dispatch(context.Background(), r.Route(ok("command open browser")))
		var ee *action.ExecutionError
		if status != 2 || !errors.As(err, &ee) || ee.ExitStatus != 2 || ee.ActionID != "browser" {
			t.Errorf("status %d err %v", status, err)
		}
	})

	t.Run("inject failure", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("no wayland display")
		rec := &mock.Recorder{InjectErr: cause}
		d := command.NewDispatcher(rec, rec)
		if _, err := d.Dispatch(context.Background(), r.Route(ok("hello"))); !errors.Is(err, cause) {
			t.Errorf("err = %v", err)
		}
	})
}
