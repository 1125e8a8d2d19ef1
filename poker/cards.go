package poker

import (
	"errors"
	"fmt"
	"strings"
)

// Rank is a card rank from Two (0) through Ace (12).
type Rank uint8

const (
	Two Rank = iota
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// Suit is a card suit.
type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

const (
	rankChars = "23456789TJQKA"
	suitChars = "CDHS"
)

// Card is one of the 52 cards, encoded as suit*13 + rank.
//
// On the wire a card is always the two character token rank-then-suit,
// e.g. "AS" for the ace of spades or "TD" for the ten of diamonds.
type Card uint8

// ErrInvalidCard is returned when a token does not name one of the 52 cards.
var ErrInvalidCard = errors.New("invalid card")

// NewCard builds a card from a rank and suit.
func NewCard(rank Rank, suit Suit) Card {
	return Card(uint8(suit)*13 + uint8(rank))
}

// Rank returns the rank of the card.
func (c Card) Rank() Rank { return Rank(uint8(c) % 13) }

// Suit returns the suit of the card.
func (c Card) Suit() Suit { return Suit(uint8(c) / 13) }

// Valid reports whether c is one of the 52 cards.
func (c Card) Valid() bool { return uint8(c) < 52 }

// String returns the two character token, e.g. "AS".
func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return string([]byte{rankChars[c.Rank()], suitChars[c.Suit()]})
}

// ParseCard parses a two character token. Lowercase suits are accepted.
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCard, s)
	}
	r := strings.IndexByte(rankChars, s[0])
	u := strings.IndexByte(suitChars, upper(s[1]))
	if r < 0 || u < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCard, s)
	}
	return NewCard(Rank(r), Suit(u)), nil
}

// MustParseCards parses a space separated list of tokens and panics on error.
// Intended for tests and fixtures.
func MustParseCards(s string) []Card {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			panic(err)
		}
		cards = append(cards, c)
	}
	return cards
}

// MarshalText implements encoding.TextMarshaler so cards serialise as tokens.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCard, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Card) UnmarshalText(b []byte) error {
	parsed, err := ParseCard(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
