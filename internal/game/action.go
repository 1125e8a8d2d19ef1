package game

import (
	"errors"
	"fmt"
)

// Action is a player intent.
type Action string

const (
	Bet   Action = "bet"
	Raise Action = "raise"
	Call  Action = "call"
	Check Action = "check"
	Fold  Action = "fold"
	AllIn Action = "allin"
)

// ParseAction converts a wire name into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case Bet, Raise, Call, Check, Fold, AllIn:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Command is an action submitted by a player. Amount is only used by Bet and
// Raise, and is the incremental number of chips committed by this action, not
// the new total.
type Command struct {
	Action Action `json:"action"`
	Amount int    `json:"amount,omitempty"`
}

var (
	// ErrIllegalAction is the root of every rejection caused by turn order,
	// betting rules or stage preconditions.
	ErrIllegalAction = errors.New("illegal action")

	// ErrPlayerNotFound is returned when the acting player is not on the roster
	// or not seated in the current hand.
	ErrPlayerNotFound = errors.New("player not found")
)

// ActionError describes why a command was rejected. It unwraps to
// ErrIllegalAction.
type ActionError struct {
	Reason string
}

func (e *ActionError) Error() string {
	return "illegal action: " + e.Reason
}

func (e *ActionError) Unwrap() error {
	return ErrIllegalAction
}

func illegal(format string, args ...any) error {
	return &ActionError{Reason: fmt.Sprintf(format, args...)}
}
