// Package ability implements the structured commands Bruno answers without
// the model: timers and notes. Each ability recognizes its own commands and
// declines everything else.
package ability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Names of the built-in abilities, in dispatch priority order.
const (
	NameTimer = "timer"
	NameNotes = "notes"
)

// ErrInvalidTransition is returned when a timer cannot move to the
// requested state.
var ErrInvalidTransition = errors.New("ability: invalid state transition")

// Request is one command offered to an ability.
type Request struct {
	Command        string
	UserID         string
	ConversationID string
}

// Result is the outcome of one ability invocation. An empty Message means
// the ability declined the command.
type Result struct {
	Success bool
	Message string
	Data    map[string]any
}

// Claimed reports whether the ability took ownership of the command.
func (r Result) Claimed() bool { return r.Message != "" }

// Declined is the zero Result.
var Declined = Result{}

// Ability recognizes and executes commands from one domain.
type Ability interface {
	Name() string
	Handle(ctx context.Context, req Request) (Result, error)
}

// Error wraps an internal failure of an ability. Dispatchers treat it as a
// decline.
type Error struct {
	Ability string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ability: %s: %v", e.Ability, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Ability: name, Err: err}
}

// parseUserID converts the numeric user id the conversation service hands
// to abilities.
func parseUserID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 0)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("user id %q is not a stored user", s)
	}
	return uint(n), nil
}
