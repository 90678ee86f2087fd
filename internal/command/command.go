// Package command classifies recognized text and hands the result to the
// action collaborators.
//
// [Router.Route] resolves text into a two-variant [Command] exactly once:
//
//   - type: the text does not start with the command prefix and is typed
//     verbatim
//   - execute: the prefix is stripped and the remainder is matched against
//     the phrase → action binding table
//
// An execute-mode command that matches no binding is unrecognized. It is
// never typed instead, so unvetted text cannot reach an action by accident.
package command

import (
	"errors"
	"fmt"
	"slices"
)

// Mode is the command variant.
type Mode int

const (
	ModeType Mode = iota + 1
	ModeExecute
)

func (m Mode) String() string {
	switch m {
	case ModeType:
		return "type"
	case ModeExecute:
		return "execute"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Validation is the routing outcome.
type Validation int

const (
	ValidationOK Validation = iota + 1
	ValidationUnrecognized
	ValidationEmpty
)

func (v Validation) String() string {
	switch v {
	case ValidationOK:
		return "ok"
	case ValidationUnrecognized:
		return "unrecognized-command"
	case ValidationEmpty:
		return "empty"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// ErrUnrecognizedCommand is returned by [Dispatcher.Dispatch] for an
// execute-mode command that matched no binding.
var ErrUnrecognizedCommand = errors.New("unrecognized command")

// ErrEmptyCommand is returned by [Dispatcher.Dispatch] for a command with
// nothing to do.
var ErrEmptyCommand = errors.New("empty command")

// Binding maps a spoken phrase to an action.
type Binding struct {
	Phrase string
	Action string
	Args   []string
}

// Command is the resolved outcome of routing one transcription result.
type Command struct {
	Mode Mode

	// Text is the payload for type mode: the recognized text, byte for byte.
	// For execute mode it is the normalised remainder after the prefix.
	Text string

	// ActionID and Args are set for a recognized execute-mode command. Args
	// holds the binding's arguments followed by any spoken words that were
	// not part of the matched phrase.
	ActionID string
	Args     []string

	// Binding is the matched phrase.
	Binding string

	Validation Validation

	// Suggestion is the closest binding phrase for an unrecognized command.
	Suggestion string

	// UtteranceID links the command to its utterance in logs.
	UtteranceID string
}

// Err returns the error matching an invalid command, or nil.
func (c Command) Err() error {
	switch c.Validation {
	case ValidationOK:
		return nil
	case ValidationUnrecognized:
		if c.Suggestion != "" {
			return fmt.Errorf("%w: %q (did you mean %q?)", ErrUnrecognizedCommand, c.Text, c.Suggestion)
		}
		return fmt.Errorf("%w: %q", ErrUnrecognizedCommand, c.Text)
	default:
		return ErrEmptyCommand
	}
}

// Equal reports whether two commands are identical.
func (c Command) Equal(o Command) bool {
	return c.Mode == o.Mode &&
		c.Text == o.Text &&
		c.ActionID == o.ActionID &&
		slices.Equal(c.Args, o.Args) &&
		c.Binding == o.Binding &&
		c.Validation == o.Validation &&
		c.Suggestion == o.Suggestion &&
		c.UtteranceID == o.UtteranceID
}
