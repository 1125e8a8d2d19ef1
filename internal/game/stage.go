package game

import (
	"errors"
	"fmt"
	"time"
)

// Stage is a betting stage of a hand. Stages only move forward.
type Stage int

const (
	Preflop Stage = iota
	Flop
	Turn
	River
	Showdown
)

var stageNames = [...]string{"preflop", "flop", "turn", "river", "showdown"}

func (s Stage) String() string {
	if s < Preflop || s > Showdown {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// BoardSize is the number of community cards visible at this stage.
func (s Stage) BoardSize() int {
	switch s {
	case Preflop:
		return 0
	case Flop:
		return 3
	case Turn:
		return 4
	default:
		return 5
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	if s < Preflop || s > Showdown {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(stageNames[s]), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("invalid stage %q", string(b))
}

// ErrRoundInProgress is returned when a stage transition is requested while
// the betting round is still open.
var ErrRoundInProgress = errors.New("betting round still in progress")

// AdvanceStage moves the table exactly one stage forward. It requires the
// betting round to be over. Entering the flop, turn and river deals community
// cards and resets every round-scoped field; entering showdown deals nothing.
// Settlement is left to Settle.
func AdvanceStage(t *Table, now time.Time) error {
	if t.Status != StatusPlaying {
		return illegal("table is not playing")
	}
	if t.Stage >= Showdown {
		return illegal("hand already at showdown")
	}
	if !IsRoundOver(t) {
		return ErrRoundInProgress
	}

	next := t.Stage + 1
	if draw := next.BoardSize() - len(t.CommunityCards); draw > 0 {
		cards, err := t.Deck.Deal(draw)
		if err != nil {
			return fmt.Errorf("dealing %s: %w", next, err)
		}
		t.CommunityCards = append(t.CommunityCards, cards...)
	}
	t.Stage = next
	t.UpdatedAt = now

	if next == Showdown {
		t.ActionIndex = NoSeat
		return nil
	}

	for i, s := range t.Seats {
		s.Bet = 0
		t.Acted[i] = !s.Actable()
	}
	t.CurrentBet = 0
	t.MinRaise = t.Rules.BigBlind
	t.LastAggressor = NoSeat
	t.ActionIndex = NextActable(t, t.DealerIndex)
	if IsRoundOver(t) {
		t.ActionIndex = NoSeat
	}
	return nil
}

// Advance runs stage transitions for as long as the betting round is over,
// which runs the board out when fewer than two seats can still bet. On
// reaching showdown the hand is settled and the table returns to waiting.
// It returns the stages entered, in order.
func Advance(t *Table, now time.Time) ([]Stage, error) {
	var entered []Stage
	for RoundPending(t) {
		if err := AdvanceStage(t, now); err != nil {
			return entered, err
		}
		entered = append(entered, t.Stage)
	}
	if t.Status == StatusPlaying && t.Stage == Showdown {
		if err := Settle(t, now); err != nil {
			return entered, err
		}
	}
	return entered, nil
}
