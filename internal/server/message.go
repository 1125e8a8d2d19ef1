package server

import (
	"github.com/lox/holdemtables/internal/engine"
)

// MessageType names an inbound or outbound message.
type MessageType string

// Client → Server
const (
	TypeHello     MessageType = "hello"
	TypeSubscribe MessageType = "subscribe"
	TypeJoin      MessageType = "join"
	TypeLeave     MessageType = "leave"
	TypeStartGame MessageType = "startGame"
	TypeBet       MessageType = "bet"
	TypeRaise     MessageType = "raise"
	TypeCall      MessageType = "call"
	TypeCheck     MessageType = "check"
	TypeFold      MessageType = "fold"
	TypeAllIn     MessageType = "allin"
)

// Server → Client. Table broadcasts use the broadcast event encoding.
const (
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"
)

// Inbound is the envelope for every client message. Which fields are used
// depends on Type. TableID defaults to the table the connection last joined
// or subscribed to.
type Inbound struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	TableID   string      `json:"tableId,omitempty"`
	PlayerID  string      `json:"playerId,omitempty"`
	Name      string      `json:"name,omitempty"`
	Amount    int         `json:"amount,omitempty"`
}

// ResultMessage answers a command, to the sender only.
type ResultMessage struct {
	Type      MessageType    `json:"type"`
	RequestID string         `json:"requestId,omitempty"`
	For       MessageType    `json:"for"`
	TableID   string         `json:"tableId,omitempty"`
	Outcome   engine.Outcome `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
}

func newResult(msg *Inbound, tableID string, res engine.Result) *ResultMessage {
	return &ResultMessage{
		Type:      TypeResult,
		RequestID: msg.RequestID,
		For:       msg.Type,
		TableID:   tableID,
		Outcome:   res.Outcome,
		Reason:    res.Reason,
	}
}

// ErrorMessage reports a message that could not be processed at all.
type ErrorMessage struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
}

// Error codes
const (
	CodeInvalidMessage   = "invalid_message"
	CodeUnknownType      = "unknown_message_type"
	CodeNotAuthenticated = "not_authenticated"
	CodeNoTable          = "no_table"
	CodeTableNotFound    = "table_not_found"
	CodeBusy             = "busy"
	CodeInternal         = "internal_error"
)
