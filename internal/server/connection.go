package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/holdemtables/internal/broadcast"
	"github.com/lox/holdemtables/internal/engine"
	"github.com/lox/holdemtables/internal/game"
	"github.com/lox/holdemtables/internal/store"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	sendBufferSize = 256
)

var ErrConnectionClosed = errors.New("connection closed")

// Connection is one WebSocket client. It carries the identity and table
// context that inbound commands implicitly refer to, and receives table
// broadcasts as a broadcast.Subscriber.
type Connection struct {
	id       string
	conn     *websocket.Conn
	send     chan any
	server   *Server
	logger   *log.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	closeOne sync.Once

	mu       sync.RWMutex
	playerID string
	name     string
	tableID  string
	joined   map[string]struct{}
}

var _ broadcast.Subscriber = (*Connection)(nil)

func newConnection(conn *websocket.Conn, s *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Connection{
		id:     id,
		conn:   conn,
		send:   make(chan any, sendBufferSize),
		server: s,
		logger: s.logger.WithPrefix("conn").With("conn", id[:8]),
		ctx:    ctx,
		cancel: cancel,
		joined: make(map[string]struct{}),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// Viewer returns the player the connection identified as.
func (c *Connection) Viewer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// Deliver queues a broadcast without blocking. A connection whose buffer is
// full is closed.
func (c *Connection) Deliver(ev broadcast.Event) error {
	return c.enqueue(ev)
}

func (c *Connection) enqueue(msg any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		c.Close()
		return ErrConnectionClosed
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close stops both pumps. The send channel is never closed so that
// concurrent publishers cannot panic.
func (c *Connection) Close() {
	c.closeOne.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) identity() (playerID, name string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID, c.name
}

func (c *Connection) table(msg *Inbound) string {
	if msg.TableID != "" {
		return msg.TableID
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableID
}

func (c *Connection) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(&msg, CodeInvalidMessage, "malformed message")
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Inbound) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.Viewer())

	switch msg.Type {
	case TypeHello:
		c.handleHello(msg)
	case TypeSubscribe:
		c.handleSubscribe(msg)
	case TypeJoin:
		c.handleJoin(msg)
	case TypeLeave:
		c.handleLeave(msg)
	case TypeStartGame:
		c.handleStartGame(msg)
	case TypeBet, TypeRaise, TypeCall, TypeCheck, TypeFold, TypeAllIn:
		c.handleAction(msg)
	default:
		c.sendError(msg, CodeUnknownType, "unknown message type: "+string(msg.Type))
	}
}

func (c *Connection) handleHello(msg *Inbound) {
	if msg.PlayerID == "" {
		c.sendError(msg, CodeInvalidMessage, "playerId required")
		return
	}
	name := msg.Name
	if name == "" {
		name = msg.PlayerID
	}

	c.mu.Lock()
	c.playerID, c.name = msg.PlayerID, name
	c.mu.Unlock()

	c.logger.Info("Player identified", "player", msg.PlayerID)
	c.reply(msg, "", engine.Result{Outcome: engine.Accepted})
}

func (c *Connection) handleSubscribe(msg *Inbound) {
	tableID := msg.TableID
	if tableID == "" {
		c.sendError(msg, CodeNoTable, "tableId required")
		return
	}

	snap, err := c.server.engine.Snapshot(c.ctx, tableID, c.Viewer())
	if err != nil {
		c.sendEngineError(msg, err)
		return
	}

	c.mu.Lock()
	c.tableID = tableID
	c.mu.Unlock()
	c.server.registry.Subscribe(tableID, c)

	c.reply(msg, tableID, engine.Result{Outcome: engine.Accepted})
	_ = c.enqueue(broadcast.TableUpdate(snap))
}

func (c *Connection) handleJoin(msg *Inbound) {
	playerID, name := c.identity()
	if playerID == "" {
		c.sendError(msg, CodeNotAuthenticated, "say hello first")
		return
	}
	tableID := c.table(msg)
	if tableID == "" {
		c.sendError(msg, CodeNoTable, "tableId required")
		return
	}

	c.server.registry.Subscribe(tableID, c)
	res, err := c.server.engine.Join(c.ctx, tableID, game.Member{PlayerID: playerID, Name: name})
	if err != nil {
		c.sendEngineError(msg, err)
		return
	}
	if res.Accepted() {
		c.mu.Lock()
		c.tableID = tableID
		c.joined[tableID] = struct{}{}
		c.mu.Unlock()
	}
	c.reply(msg, tableID, res)
}

func (c *Connection) handleLeave(msg *Inbound) {
	playerID, _ := c.identity()
	if playerID == "" {
		c.sendError(msg, CodeNotAuthenticated, "say hello first")
		return
	}
	tableID := c.table(msg)
	if tableID == "" {
		c.sendError(msg, CodeNoTable, "tableId required")
		return
	}

	res, err := c.server.engine.Leave(c.ctx, tableID, playerID)
	if err != nil {
		c.sendEngineError(msg, err)
		return
	}
	if res.Accepted() {
		c.mu.Lock()
		delete(c.joined, tableID)
		c.mu.Unlock()
	}
	c.reply(msg, tableID, res)
}

func (c *Connection) handleStartGame(msg *Inbound) {
	playerID, _ := c.identity()
	if playerID == "" {
		c.sendError(msg, CodeNotAuthenticated, "say hello first")
		return
	}
	tableID := c.table(msg)
	if tableID == "" {
		c.sendError(msg, CodeNoTable, "tableId required")
		return
	}

	res, err := c.server.engine.StartGame(c.ctx, tableID, playerID)
	if err != nil {
		c.sendEngineError(msg, err)
		return
	}
	c.reply(msg, tableID, res)
}

func (c *Connection) handleAction(msg *Inbound) {
	playerID, _ := c.identity()
	if playerID == "" {
		c.sendError(msg, CodeNotAuthenticated, "say hello first")
		return
	}
	tableID := c.table(msg)
	if tableID == "" {
		c.sendError(msg, CodeNoTable, "tableId required")
		return
	}
	action, err := game.ParseAction(string(msg.Type))
	if err != nil {
		c.sendError(msg, CodeUnknownType, err.Error())
		return
	}

	res, err := c.server.engine.Act(c.ctx, tableID, playerID, game.Command{Action: action, Amount: msg.Amount})
	if err != nil {
		c.sendEngineError(msg, err)
		return
	}
	c.reply(msg, tableID, res)
}

func (c *Connection) reply(msg *Inbound, tableID string, res engine.Result) {
	_ = c.enqueue(newResult(msg, tableID, res))
}

func (c *Connection) sendError(msg *Inbound, code, message string) {
	_ = c.enqueue(&ErrorMessage{
		Type:      TypeError,
		RequestID: msg.RequestID,
		Code:      code,
		Message:   message,
	})
}

func (c *Connection) sendEngineError(msg *Inbound, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.sendError(msg, CodeTableNotFound, err.Error())
	case errors.Is(err, engine.ErrBusy):
		c.sendError(msg, CodeBusy, err.Error())
	default:
		c.logger.Error("Command failed", "type", msg.Type, "error", err)
		c.sendError(msg, CodeInternal, "internal error")
	}
}

// joinedTables returns the tables the player joined through this connection.
func (c *Connection) joinedTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.joined))
	for id := range c.joined {
		out = append(out, id)
	}
	return out
}
