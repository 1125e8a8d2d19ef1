package poker

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"slices"
)

// ErrDeckExhausted is returned when drawing from an empty deck. Within a
// single hand this can only happen through a programming error.
var ErrDeckExhausted = errors.New("deck exhausted")

// Deck is an ordered stack of undealt cards. Cards are drawn from the end.
type Deck struct {
	cards []Card
}

// NewDeck creates a freshly shuffled 52 card deck using rng.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := range Suit(4) {
		for rank := range Rank(13) {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	d.shuffle(rng)
	return d
}

// NewDeckFromCards builds a deck whose next draws return cards in the given
// order (cards[0] is drawn first). Used for deterministic fixtures.
func NewDeckFromCards(cards ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	for i, c := range cards {
		d.cards[len(cards)-1-i] = c
	}
	return d
}

// shuffle applies Fisher-Yates from the last index down to 1.
func (d *Deck) shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns the card on top of the stack.
func (d *Deck) Draw() (Card, error) {
	if d == nil || len(d.cards) == 0 {
		return 0, ErrDeckExhausted
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, nil
}

// Deal draws n cards. On exhaustion no cards are removed.
func (d *Deck) Deal(n int) ([]Card, error) {
	if n > d.Remaining() {
		return nil, ErrDeckExhausted
	}
	out := make([]Card, n)
	for i := range out {
		out[i], _ = d.Draw()
	}
	return out, nil
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	if d == nil {
		return 0
	}
	return len(d.cards)
}

// Cards returns a copy of the undealt cards, top of the stack last.
func (d *Deck) Cards() []Card {
	return slices.Clone(d.cards)
}

// Clone returns an independent copy.
func (d *Deck) Clone() *Deck {
	if d == nil {
		return nil
	}
	return &Deck{cards: d.Cards()}
}

func (d *Deck) MarshalJSON() ([]byte, error) {
	if d.cards == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.cards)
}

func (d *Deck) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &d.cards)
}
