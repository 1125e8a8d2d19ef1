// Package broadcast fans table state out to observers.
package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/lox/holdemtables/internal/game"
)

// EventType identifies the kind of broadcast.
type EventType string

const (
	TypeTableUpdate EventType = "tableUpdate"
	TypeRoomUpdate  EventType = "roomUpdate"
)

// Event is a state snapshot sent to every observer of a table. A tableUpdate
// carries the full table; a roomUpdate carries the lobby summary, or nil when
// the room has been dissolved.
type Event struct {
	Type  EventType
	Table *game.Table
	Room  *game.RoomSummary
}

func TableUpdate(t *game.Table) Event {
	return Event{Type: TypeTableUpdate, Table: t}
}

func RoomUpdate(t *game.Table) Event {
	s := t.Summary()
	return Event{Type: TypeRoomUpdate, Room: &s}
}

// RoomDissolved is the roomUpdate sent when the last member leaves.
func RoomDissolved() Event {
	return Event{Type: TypeRoomUpdate}
}

// ForViewer returns the event as playerID may see it. Table snapshots are
// redacted with game.Table.ViewFor.
func (e Event) ForViewer(playerID string) Event {
	if e.Table != nil {
		e.Table = e.Table.ViewFor(playerID)
	}
	return e
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeTableUpdate:
		return json.Marshal(struct {
			Type  EventType   `json:"type"`
			Table *game.Table `json:"table"`
		}{e.Type, e.Table})
	case TypeRoomUpdate:
		return json.Marshal(struct {
			Type EventType         `json:"type"`
			Room *game.RoomSummary `json:"room"`
		}{e.Type, e.Room})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}
