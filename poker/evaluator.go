package poker

import (
	"fmt"

	ph "github.com/paulhankin/poker"
)

// HandValue is the strength of a seven card hand. Higher values win.
type HandValue int16

// Evaluate scores the best five card hand out of exactly seven cards.
func Evaluate(cards []Card) (HandValue, error) {
	var seven [7]ph.Card
	if len(cards) != 7 {
		return 0, fmt.Errorf("evaluate: need 7 cards, got %d", len(cards))
	}
	for i, c := range cards {
		pc, err := toEvalCard(c)
		if err != nil {
			return 0, err
		}
		seven[i] = pc
	}
	return HandValue(ph.Eval7(&seven)), nil
}

// Describe returns a human readable name for the best hand in cards,
// e.g. "two pair, kings and fours".
func Describe(cards []Card) (string, error) {
	pcs := make([]ph.Card, len(cards))
	for i, c := range cards {
		pc, err := toEvalCard(c)
		if err != nil {
			return "", err
		}
		pcs[i] = pc
	}
	return ph.Describe(pcs)
}

// toEvalCard maps our rank order (Two..Ace) onto the evaluator's (Ace=1..King=13).
func toEvalCard(c Card) (ph.Card, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCard, uint8(c))
	}
	rank := uint8(c.Rank()) + 2
	if c.Rank() == Ace {
		rank = 1
	}
	pc, err := ph.MakeCard(ph.Suit(c.Suit()), ph.Rank(rank))
	if err != nil {
		return 0, fmt.Errorf("card %s: %w", c, err)
	}
	return pc, nil
}
