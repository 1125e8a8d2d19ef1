package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/lox/holdemtables/poker"
)

// ErrNotEnoughPlayers is returned when fewer than two members have chips.
var ErrNotEnoughPlayers = errors.New("at least 2 players with chips required")

// HandOption configures StartHand.
type HandOption func(*handConfig)

type handConfig struct {
	deck   *poker.Deck
	newID  func() string
	button int
}

// WithDeck uses a pre-arranged deck instead of shuffling a fresh one.
func WithDeck(deck *poker.Deck) HandOption {
	return func(c *handConfig) {
		c.deck = deck
	}
}

// WithIDs overrides how hand and seat identifiers are generated.
func WithIDs(newID func() string) HandOption {
	return func(c *handConfig) {
		c.newID = newID
	}
}

// WithButton places the dealer button on the given roster index instead of
// rotating it from the previous hand.
func WithButton(rosterIndex int) HandOption {
	return func(c *handConfig) {
		c.button = rosterIndex
	}
}

// StartHand moves a waiting table into play: every member with chips is
// seated in roster order, a fresh shuffled deck is built, two cards are dealt
// to each seat, the dealer button rotates, blinds are posted and the action
// pointer is set to the first actable seat after the big blind.
//
// Heads-up the dealer posts the small blind.
func StartHand(t *Table, rng *rand.Rand, now time.Time, opts ...HandOption) error {
	if t.Status != StatusWaiting {
		return illegal("hand already in progress")
	}

	cfg := &handConfig{newID: newID, button: -1}
	for _, opt := range opts {
		opt(cfg)
	}

	var eligible []int
	for i, m := range t.Members {
		if m.Chips > 0 && !m.Leaving {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) < 2 {
		return ErrNotEnoughPlayers
	}

	deck := cfg.deck
	if deck == nil {
		if rng == nil {
			return errors.New("rng is required to shuffle the deck")
		}
		deck = poker.NewDeck(rng)
	}
	if deck.Remaining() < 2*len(eligible)+5 {
		return fmt.Errorf("deck of %d cards cannot serve %d seats: %w", deck.Remaining(), len(eligible), poker.ErrDeckExhausted)
	}

	button := cfg.button
	if button < 0 || button >= len(t.Members) || t.Members[button].Chips <= 0 {
		button = nextEligible(eligible, t.Button)
	}

	seats := make([]*Seat, len(eligible))
	dealer := 0
	for pos, idx := range eligible {
		m := t.Members[idx]
		seats[pos] = &Seat{
			ID:       cfg.newID(),
			PlayerID: m.PlayerID,
			Name:     m.Name,
			Position: pos,
			Chips:    m.Chips,
		}
		if idx == button {
			dealer = pos
		}
	}

	n := len(seats)
	t.Seats = seats
	t.Button = button
	t.DealerIndex = dealer
	if n == 2 {
		t.SmallBlindIndex = dealer
		t.BigBlindIndex = (dealer + 1) % n
	} else {
		t.SmallBlindIndex = (dealer + 1) % n
		t.BigBlindIndex = (dealer + 2) % n
	}

	t.Deck = deck
	t.dealHoleCards()

	t.Status = StatusPlaying
	t.HandID = cfg.newID()
	t.HandNumber++
	t.Stage = Preflop
	t.CommunityCards = nil
	t.Pot = 0
	t.History = nil
	t.Results = nil
	t.Acted = make([]bool, n)

	t.postBlinds()
	for i, s := range t.Seats {
		t.Acted[i] = !s.Actable()
	}
	t.ActionIndex = NextActable(t, t.BigBlindIndex)
	if IsRoundOver(t) {
		t.ActionIndex = NoSeat
	}
	t.UpdatedAt = now
	return nil
}

// dealHoleCards deals one card at a time, starting left of the dealer.
func (t *Table) dealHoleCards() {
	n := len(t.Seats)
	for round := 0; round < 2; round++ {
		for i := 1; i <= n; i++ {
			seat := t.Seats[(t.DealerIndex+i)%n]
			card, err := t.Deck.Draw()
			if err != nil {
				// StartHand checked the deck size.
				panic(err)
			}
			seat.Hand = append(seat.Hand, card)
		}
	}
}

// postBlinds posts the forced bets. A seat that cannot cover its blind posts
// what it has and is all-in. The big blind is recorded as the aggressor.
func (t *Table) postBlinds() {
	sb := t.Seats[t.SmallBlindIndex]
	bb := t.Seats[t.BigBlindIndex]
	chipsIn(t, sb, min(t.Rules.SmallBlind, sb.Chips))
	chipsIn(t, bb, min(t.Rules.BigBlind, bb.Chips))

	t.CurrentBet = max(sb.Bet, bb.Bet)
	t.MinRaise = t.Rules.BigBlind
	t.LastAggressor = t.BigBlindIndex
}

// nextEligible returns the first eligible roster index after prev, wrapping.
func nextEligible(eligible []int, prev int) int {
	for _, idx := range eligible {
		if idx > prev {
			return idx
		}
	}
	return eligible[0]
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
