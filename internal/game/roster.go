package game

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrTableFull     = errors.New("table is full")
	ErrAlreadyJoined = errors.New("player already at table")
	ErrNotOwner      = errors.New("only the owner can start the game")
)

// NewTable creates a waiting table. owner may be the zero Member for tables
// created by configuration; the first member to join then becomes owner.
func NewTable(id, name string, owner Member, rules Rules, now time.Time) *Table {
	t := &Table{
		ID:            id,
		Name:          name,
		Rules:         rules,
		Status:        StatusWaiting,
		Button:        -1,
		ActionIndex:   NoSeat,
		LastAggressor: NoSeat,
		UpdatedAt:     now,
	}
	if owner.PlayerID != "" {
		if owner.Chips == 0 {
			owner.Chips = rules.StartingChips
		}
		t.OwnerID = owner.PlayerID
		t.Members = []Member{owner}
	}
	return t
}

// Join adds m to the roster. Members joining while a hand is in progress are
// dealt in from the next hand. A zero chip count means the table's starting
// chips.
func Join(t *Table, m Member) error {
	if m.PlayerID == "" {
		return fmt.Errorf("%w: empty player id", ErrPlayerNotFound)
	}
	if t.MemberIndex(m.PlayerID) >= 0 {
		return ErrAlreadyJoined
	}
	if len(t.Members) >= t.Rules.MaxPlayers {
		return ErrTableFull
	}
	if m.Chips == 0 {
		m.Chips = t.Rules.StartingChips
	}
	t.Members = append(t.Members, m)
	if t.OwnerID == "" {
		t.OwnerID = m.PlayerID
	}
	return nil
}

// Leave removes playerID from the roster. A player seated in the hand in
// progress folds at once and stays on the roster, marked as leaving, until
// the hand is settled. Ownership passes to the first remaining member. It
// reports whether the room is now empty and should be dissolved.
func Leave(t *Table, playerID string, now time.Time) (dissolved bool, err error) {
	idx := t.MemberIndex(playerID)
	if idx < 0 {
		return false, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	if pos := t.SeatOf(playerID); t.Status == StatusPlaying && pos != NoSeat {
		if t.Members[idx].Leaving {
			return false, illegal("already leaving")
		}
		t.Members[idx].Leaving = true
		forfeit(t, pos, now)
		return false, nil
	}

	removeMember(t, idx)
	return len(t.Members) == 0, nil
}

// removeLeavers drops every member marked as leaving.
func removeLeavers(t *Table) {
	for i := len(t.Members) - 1; i >= 0; i-- {
		if t.Members[i].Leaving {
			removeMember(t, i)
		}
	}
}

func removeMember(t *Table, idx int) {
	playerID := t.Members[idx].PlayerID
	t.Members = append(t.Members[:idx], t.Members[idx+1:]...)
	if t.Button >= idx && t.Button >= 0 {
		t.Button--
	}
	if t.OwnerID == playerID {
		t.OwnerID = ""
		if len(t.Members) > 0 {
			t.OwnerID = t.Members[0].PlayerID
		}
	}
}

// CanStart checks that playerID may start a hand on t.
func CanStart(t *Table, playerID string) error {
	if t.OwnerID != playerID {
		return ErrNotOwner
	}
	if t.Status != StatusWaiting {
		return illegal("hand already in progress")
	}
	return nil
}

// RoomSummary is the lobby-facing subset of a table.
type RoomSummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	OwnerID    string   `json:"ownerId"`
	Members    []Member `json:"members"`
	MaxPlayers int      `json:"maxPlayers"`
	Status     Status   `json:"status"`
	HandNumber int      `json:"handNumber"`
}

// Summary returns the lobby view of the table.
func (t *Table) Summary() RoomSummary {
	return RoomSummary{
		ID:         t.ID,
		Name:       t.Name,
		OwnerID:    t.OwnerID,
		Members:    slices.Clone(t.Members),
		MaxPlayers: t.Rules.MaxPlayers,
		Status:     t.Status,
		HandNumber: t.HandNumber,
	}
}
