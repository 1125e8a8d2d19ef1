package game

import (
	"slices"
	"time"

	"github.com/lox/holdemtables/poker"
)

// NoSeat marks an empty action pointer or aggressor.
const NoSeat = -1

// Status is the lifecycle state of a table.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
)

// Rules are the fixed parameters of a table.
type Rules struct {
	MaxPlayers    int `json:"maxPlayers"`
	SmallBlind    int `json:"smallBlind"`
	BigBlind      int `json:"bigBlind"`
	StartingChips int `json:"startingChips"`
}

// DefaultRules returns 1/2 blinds, six players and 1000 starting chips.
func DefaultRules() Rules {
	return Rules{
		MaxPlayers:    6,
		SmallBlind:    1,
		BigBlind:      2,
		StartingChips: 1000,
	}
}

// Member is a player in the room roster. Chips carry over between hands.
// Leaving marks a member who left while seated; they are removed when the
// hand is settled.
type Member struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Chips    int    `json:"chips"`
	Leaving  bool   `json:"leaving,omitempty"`
}

// Seat is a player's state for the current hand. Position is fixed for the
// hand; ID is a stable identifier that does not depend on position.
type Seat struct {
	ID       string       `json:"id"`
	PlayerID string       `json:"playerId"`
	Name     string       `json:"name"`
	Position int          `json:"position"`
	Chips    int          `json:"chips"`
	Hand     []poker.Card `json:"hand,omitempty"`
	Bet      int          `json:"bet"`      // committed this betting round
	TotalBet int          `json:"totalBet"` // committed this hand
	Folded   bool         `json:"folded"`
	AllIn    bool         `json:"allIn"`
}

// Actable reports whether the seat can still act: not folded and not all-in.
func (s *Seat) Actable() bool {
	return !s.Folded && !s.AllIn
}

// BetRecord is one entry of the append-only bet history.
type BetRecord struct {
	SeatID   string    `json:"seatId"`
	PlayerID string    `json:"playerId"`
	Position int       `json:"position"`
	Action   Action    `json:"action"`
	Amount   int       `json:"amount"`
	Stage    Stage     `json:"stage"`
	At       time.Time `json:"timestamp"`
}

// Table is the authoritative record of one room and its current hand.
type Table struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
	OwnerID string `json:"ownerId"`
	Rules   Rules  `json:"rules"`

	Members []Member `json:"members"`
	Status  Status   `json:"status"`

	HandID     string `json:"handId,omitempty"`
	HandNumber int    `json:"handNumber"`
	Button     int    `json:"button"` // roster index of the last dealer

	Seats           []*Seat      `json:"seats"`
	DealerIndex     int          `json:"dealerIndex"`
	SmallBlindIndex int          `json:"smallBlindIndex"`
	BigBlindIndex   int          `json:"bigBlindIndex"`
	CommunityCards  []poker.Card `json:"communityCards"`
	Pot             int          `json:"pot"`
	Stage           Stage        `json:"stage"`
	Deck            *poker.Deck  `json:"deck,omitempty"`
	CurrentBet      int          `json:"currentBet"`
	MinRaise        int          `json:"minRaise"`
	LastAggressor   int          `json:"lastAggressor"`
	Acted           []bool       `json:"acted"`
	ActionIndex     int          `json:"actionIndex"`
	History         []BetRecord  `json:"betHistory"`

	Results   *HandResult `json:"results,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// SeatOf returns the position of playerID in the current hand, or NoSeat.
func (t *Table) SeatOf(playerID string) int {
	for i, s := range t.Seats {
		if s.PlayerID == playerID {
			return i
		}
	}
	return NoSeat
}

// SeatByID returns the seat with the given stable identifier.
func (t *Table) SeatByID(id string) *Seat {
	for _, s := range t.Seats {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ToAct returns the seat holding the action pointer, if any.
func (t *Table) ToAct() *Seat {
	if t.ActionIndex < 0 || t.ActionIndex >= len(t.Seats) {
		return nil
	}
	return t.Seats[t.ActionIndex]
}

// MemberIndex returns the roster index of playerID, or -1.
func (t *Table) MemberIndex(playerID string) int {
	for i, m := range t.Members {
		if m.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := *t
	c.Members = slices.Clone(t.Members)
	if t.Seats != nil {
		c.Seats = make([]*Seat, len(t.Seats))
		for i, s := range t.Seats {
			cp := *s
			cp.Hand = slices.Clone(s.Hand)
			c.Seats[i] = &cp
		}
	}
	c.CommunityCards = slices.Clone(t.CommunityCards)
	c.Deck = t.Deck.Clone()
	c.Acted = slices.Clone(t.Acted)
	c.History = slices.Clone(t.History)
	if t.Results != nil {
		c.Results = t.Results.clone()
	}
	return &c
}
