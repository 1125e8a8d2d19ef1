package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/lox/holdemtables/poker"
)

// HandResult records how a finished hand was paid out.
type HandResult struct {
	HandID      string       `json:"handId"`
	Uncontested bool         `json:"uncontested"`
	Pots        []PotResult  `json:"pots"`
	Payouts     []Payout     `json:"payouts"`
	Board       []poker.Card `json:"board"`
}

// PotResult is the outcome of a single main or side pot.
type PotResult struct {
	Amount  int      `json:"amount"`
	Winners []string `json:"winners"` // seat ids
}

// Payout is the total a seat collected at the end of the hand.
type Payout struct {
	SeatID   string `json:"seatId"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Amount   int    `json:"amount"`
	HandName string `json:"handName,omitempty"`
}

func (r *HandResult) clone() *HandResult {
	c := *r
	c.Pots = slices.Clone(r.Pots)
	for i, p := range c.Pots {
		c.Pots[i].Winners = slices.Clone(p.Winners)
	}
	c.Payouts = slices.Clone(r.Payouts)
	c.Board = slices.Clone(r.Board)
	return &c
}

// Settle pays out the pot of a hand that reached showdown: side pots are
// built from what each seat committed, each pot goes to the best hand among
// its eligible seats, and split pots give odd chips to the winner closest to
// the left of the dealer. Stacks are written back to the roster and the table
// returns to waiting.
func Settle(t *Table, now time.Time) error {
	if t.Status != StatusPlaying || t.Stage != Showdown {
		return illegal("hand is not at showdown")
	}

	live := contenders(t)
	result := &HandResult{
		HandID:      t.HandID,
		Uncontested: len(live) == 1,
		Board:       slices.Clone(t.CommunityCards),
	}

	values := make(map[int]poker.HandValue, len(live))
	names := make(map[int]string, len(live))
	if !result.Uncontested {
		for _, pos := range live {
			seat := t.Seats[pos]
			cards := append(slices.Clone(seat.Hand), t.CommunityCards...)
			v, err := poker.Evaluate(cards)
			if err != nil {
				return fmt.Errorf("evaluating seat %d: %w", pos, err)
			}
			values[pos] = v
			if desc, err := poker.Describe(cards); err == nil {
				names[pos] = desc
			}
		}
	}

	won := make([]int, len(t.Seats))
	pots := BuildPots(t.Seats)
	distributed := 0
	for _, pot := range pots {
		winners := pot.Eligible
		if !result.Uncontested && len(winners) > 1 {
			winners = bestHands(pot.Eligible, values)
		}
		winners = leftOfDealer(winners, t.DealerIndex, len(t.Seats))

		share, odd := pot.Amount/len(winners), pot.Amount%len(winners)
		pr := PotResult{Amount: pot.Amount}
		for i, pos := range winners {
			won[pos] += share
			if i < odd {
				won[pos]++
			}
			pr.Winners = append(pr.Winners, t.Seats[pos].ID)
		}
		result.Pots = append(result.Pots, pr)
		distributed += pot.Amount
	}
	if rest := t.Pot - distributed; rest > 0 && len(live) > 0 {
		won[live[0]] += rest
	}

	for pos, amount := range won {
		seat := t.Seats[pos]
		seat.Chips += amount
		seat.Bet = 0
		if amount > 0 {
			result.Payouts = append(result.Payouts, Payout{
				SeatID:   seat.ID,
				PlayerID: seat.PlayerID,
				Name:     seat.Name,
				Amount:   amount,
				HandName: names[pos],
			})
		}
		if i := t.MemberIndex(seat.PlayerID); i >= 0 {
			t.Members[i].Chips = seat.Chips
		}
	}

	t.Pot = 0
	t.CurrentBet = 0
	t.ActionIndex = NoSeat
	t.Results = result
	t.Status = StatusWaiting
	removeLeavers(t)
	t.UpdatedAt = now
	return nil
}

func bestHands(eligible []int, values map[int]poker.HandValue) []int {
	var best []int
	var top poker.HandValue
	for _, pos := range eligible {
		v := values[pos]
		switch {
		case len(best) == 0 || v > top:
			top = v
			best = []int{pos}
		case v == top:
			best = append(best, pos)
		}
	}
	return best
}

// leftOfDealer orders positions clockwise starting with the seat after the
// dealer.
func leftOfDealer(positions []int, dealer, n int) []int {
	out := make([]int, 0, len(positions))
	for i := 1; i <= n; i++ {
		pos := (dealer + i) % n
		for _, p := range positions {
			if p == pos {
				out = append(out, p)
			}
		}
	}
	return out
}
