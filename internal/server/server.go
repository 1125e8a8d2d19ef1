package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/holdemtables/internal/broadcast"
	"github.com/lox/holdemtables/internal/engine"
	"github.com/lox/holdemtables/internal/game"
)

// Engine is the part of engine.Engine the transport drives.
type Engine interface {
	Join(ctx context.Context, tableID string, m game.Member) (engine.Result, error)
	Leave(ctx context.Context, tableID, playerID string) (engine.Result, error)
	StartGame(ctx context.Context, tableID, playerID string) (engine.Result, error)
	Act(ctx context.Context, tableID, playerID string, cmd game.Command) (engine.Result, error)
	Snapshot(ctx context.Context, tableID, viewerID string) (*game.Table, error)
	List(ctx context.Context) ([]game.RoomSummary, error)
}

var _ Engine = (*engine.Engine)(nil)

// Server accepts WebSocket clients and serves the HTTP endpoints.
type Server struct {
	addr     string
	engine   Engine
	registry *broadcast.Registry
	logger   *log.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	mu          sync.Mutex
	connections map[*Connection]struct{}
}

func NewServer(addr string, eng Engine, registry *broadcast.Registry, logger *log.Logger) *Server {
	s := &Server{
		addr:     addr,
		engine:   eng,
		registry: registry,
		logger:   logger.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients are served from elsewhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connections: make(map[*Connection]struct{}),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes: /ws, /health and /tables.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tables", s.handleTables)
	return mux
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting WebSocket server", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every client connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}

	s.logger.Info("Server stopped", "connections", len(conns))
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	c := newConnection(conn, s)
	s.mu.Lock()
	s.connections[c] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)

	c.Start()
	go func() {
		<-c.Done()
		s.unregister(c)
	}()
}

// unregister forgets a closed connection. The player leaves every table they
// joined from it; one seated in a running hand folds and is removed when the
// hand ends.
func (s *Server) unregister(c *Connection) {
	s.registry.UnsubscribeAll(c)

	s.mu.Lock()
	delete(s.connections, c)
	total := len(s.connections)
	s.mu.Unlock()

	if playerID := c.Viewer(); playerID != "" {
		for _, tableID := range c.joinedTables() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			res, err := s.engine.Leave(ctx, tableID, playerID)
			cancel()
			if err != nil {
				s.logger.Error("Failed to remove disconnected player", "player", playerID, "table", tableID, "error", err)
				continue
			}
			s.logger.Debug("Removed disconnected player", "player", playerID, "table", tableID, "outcome", res.Outcome)
		}
	}

	s.logger.Info("Client disconnected", "total", total)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.engine.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list tables", "error", err)
		http.Error(w, "failed to list tables", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"tables": rooms})
}
