package game

import (
	"fmt"
	"time"
)

// Apply validates cmd for playerID against the table and, only if it is
// legal, applies it. A rejected command leaves t untouched and returns an
// error wrapping ErrIllegalAction (or ErrPlayerNotFound).
//
// A successful command appends a bet record, marks the seat as having acted,
// and moves the action pointer to the next actable seat. When the command
// closes the betting round the pointer is cleared; the caller is expected to
// follow up with Advance.
func Apply(t *Table, playerID string, cmd Command, now time.Time) error {
	if t.Status != StatusPlaying {
		return illegal("table is not playing")
	}
	pos := t.SeatOf(playerID)
	if pos == NoSeat {
		return fmt.Errorf("%w: %s is not seated", ErrPlayerNotFound, playerID)
	}
	if t.Stage == Showdown {
		return illegal("betting is closed at showdown")
	}
	if IsRoundOver(t) {
		return illegal("betting round is closed")
	}
	if t.ActionIndex != pos {
		return illegal("not your turn")
	}

	seat := t.Seats[pos]
	commit, err := validate(t, seat, cmd)
	if err != nil {
		return err
	}

	// Validation is complete; nothing below can fail.
	switch cmd.Action {
	case Bet, Raise:
		chipsIn(t, seat, commit)
		t.CurrentBet = seat.Bet
		t.MinRaise = max(t.MinRaise, commit)
		t.LastAggressor = pos
	case Call:
		chipsIn(t, seat, commit)
	case Check:
	case Fold:
		seat.Folded = true
	case AllIn:
		chipsIn(t, seat, commit)
		seat.AllIn = true
		if seat.Bet > t.CurrentBet {
			t.CurrentBet = seat.Bet
			t.MinRaise = max(t.MinRaise, commit)
			t.LastAggressor = pos
		}
	}

	t.History = append(t.History, BetRecord{
		SeatID:   seat.ID,
		PlayerID: seat.PlayerID,
		Position: pos,
		Action:   cmd.Action,
		Amount:   commit,
		Stage:    t.Stage,
		At:       now,
	})
	t.Acted[pos] = true
	t.ActionIndex = NextActable(t, pos)
	if IsRoundOver(t) {
		t.ActionIndex = NoSeat
	}
	t.UpdatedAt = now
	return nil
}

// validate checks the betting rules for cmd and returns the number of chips
// the action moves from the seat's stack into the pot.
func validate(t *Table, seat *Seat, cmd Command) (int, error) {
	switch cmd.Action {
	case Fold:
		if seat.Folded {
			return 0, illegal("already folded")
		}
		return 0, nil
	case Bet, Raise, Call, Check, AllIn:
	default:
		return 0, illegal("unknown action %q", cmd.Action)
	}

	if !seat.Actable() {
		return 0, illegal("seat cannot act")
	}

	switch cmd.Action {
	case Bet, Raise:
		if cmd.Amount < t.MinRaise {
			return 0, illegal("%s of %d is below the minimum of %d", cmd.Action, cmd.Amount, t.MinRaise)
		}
		if cmd.Amount > seat.Chips {
			return 0, illegal("%s of %d exceeds stack of %d", cmd.Action, cmd.Amount, seat.Chips)
		}
		if seat.Bet+cmd.Amount <= t.CurrentBet {
			return 0, illegal("%s of %d does not exceed the current bet of %d", cmd.Action, cmd.Amount, t.CurrentBet)
		}
		return cmd.Amount, nil
	case Call:
		toCall := t.CurrentBet - seat.Bet
		if toCall > seat.Chips {
			return 0, illegal("cannot call %d with %d chips, go all-in instead", toCall, seat.Chips)
		}
		return toCall, nil
	case Check:
		if seat.Bet != t.CurrentBet {
			return 0, illegal("cannot check, %d to call", t.CurrentBet-seat.Bet)
		}
		return 0, nil
	case AllIn:
		if seat.Chips <= 0 {
			return 0, illegal("no chips to commit")
		}
		return seat.Chips, nil
	}
	return 0, nil
}

// chipsIn moves amount from the seat's stack into its bet and the pot. A seat
// left with no chips is all-in.
func chipsIn(t *Table, seat *Seat, amount int) {
	seat.Chips -= amount
	seat.Bet += amount
	seat.TotalBet += amount
	t.Pot += amount
	if seat.Chips == 0 {
		seat.AllIn = true
	}
}

// forfeit folds the seat at pos regardless of whose turn it is, for a player
// leaving mid-hand. All-in seats keep their claim on the pot.
func forfeit(t *Table, pos int, now time.Time) {
	seat := t.Seats[pos]
	if seat.Folded || seat.AllIn {
		return
	}
	seat.Folded = true
	t.Acted[pos] = true
	t.History = append(t.History, BetRecord{
		SeatID:   seat.ID,
		PlayerID: seat.PlayerID,
		Position: pos,
		Action:   Fold,
		Stage:    t.Stage,
		At:       now,
	})
	if t.ActionIndex == pos {
		t.ActionIndex = NextActable(t, pos)
	}
	if IsRoundOver(t) {
		t.ActionIndex = NoSeat
	}
	t.UpdatedAt = now
}

// IsRoundOver reports whether the current betting round has ended.
//
// With at most one seat still contesting the pot, or no actable seat left,
// the round is over. A lone actable seat only has
// to act if it is still short of the current bet (an all-in raised over it).
// Otherwise every actable seat must have acted this round and must have
// matched the current bet; a seat can have acted with a stale lower bet after
// a re-raise, so both conditions are required.
func IsRoundOver(t *Table) bool {
	if t.Status != StatusPlaying {
		return false
	}
	if len(contenders(t)) <= 1 {
		return true
	}
	var active []int
	for i, s := range t.Seats {
		if s.Actable() {
			active = append(active, i)
		}
	}
	switch len(active) {
	case 0:
		return true
	case 1:
		return t.Seats[active[0]].Bet >= t.CurrentBet
	}
	for _, i := range active {
		if !t.Acted[i] || t.Seats[i].Bet != t.CurrentBet {
			return false
		}
	}
	return true
}

// RoundPending reports whether a stage transition is due: the hand is in
// progress, the betting round is over and showdown has not been reached.
func RoundPending(t *Table) bool {
	return t.Status == StatusPlaying && t.Stage != Showdown && IsRoundOver(t)
}

// ActionOption is a legal action for a seat together with the accepted
// amount range. Min and Max are zero for actions without an amount.
type ActionOption struct {
	Action Action `json:"action"`
	Min    int    `json:"min,omitempty"`
	Max    int    `json:"max,omitempty"`
}

// ValidActions lists the commands Apply would accept from playerID right now.
func ValidActions(t *Table, playerID string) []ActionOption {
	pos := t.SeatOf(playerID)
	if t.Status != StatusPlaying || pos == NoSeat || pos != t.ActionIndex || IsRoundOver(t) {
		return nil
	}
	seat := t.Seats[pos]
	if !seat.Actable() {
		return nil
	}

	opts := []ActionOption{{Action: Fold}}
	toCall := t.CurrentBet - seat.Bet
	if toCall == 0 {
		opts = append(opts, ActionOption{Action: Check})
	} else if toCall <= seat.Chips {
		opts = append(opts, ActionOption{Action: Call, Min: toCall, Max: toCall})
	}

	minRaise := max(t.MinRaise, toCall+1)
	if seat.Chips >= minRaise {
		kind := Raise
		if t.CurrentBet == 0 {
			kind = Bet
		}
		opts = append(opts, ActionOption{Action: kind, Min: minRaise, Max: seat.Chips})
	}
	opts = append(opts, ActionOption{Action: AllIn, Min: seat.Chips, Max: seat.Chips})
	return opts
}
