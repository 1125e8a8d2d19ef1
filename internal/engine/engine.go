// Package engine serializes player commands against stored tables.
//
// Every command is an optimistic read-apply-write cycle: the table is loaded,
// the command is applied to the loaded copy with the game package, and the
// result is saved only if nobody else saved the table in the meantime. A lost
// race is handled according to the configured ConflictPolicy. Observers are
// notified after each durable write, and a betting round closed by a command
// is advanced in a second write that is published after the first.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/holdemtables/internal/broadcast"
	"github.com/lox/holdemtables/internal/game"
	"github.com/lox/holdemtables/internal/randutil"
	"github.com/lox/holdemtables/internal/store"
)

// ErrBusy is returned when every attempt to apply a command lost a write
// race.
var ErrBusy = errors.New("table busy, try again")

// Outcome classifies the result of a command.
type Outcome string

const (
	Accepted Outcome = "accepted"
	Rejected Outcome = "rejected"
	Dropped  Outcome = "dropped"
)

// Result is returned synchronously to the caller of every command.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

func (r Result) Accepted() bool {
	return r.Outcome == Accepted
}

// ConflictPolicy decides what happens to a command whose write lost a race.
type ConflictPolicy string

const (
	// PolicyRetry reloads and reapplies the command up to MaxAttempts times
	// before failing with ErrBusy.
	PolicyRetry ConflictPolicy = "retry"
	// PolicyDrop discards the command and reports it as Dropped.
	PolicyDrop ConflictPolicy = "drop"
)

// ParseConflictPolicy converts a configuration value.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case PolicyRetry, PolicyDrop:
		return p, nil
	}
	return "", fmt.Errorf("invalid conflict policy %q (supported: %s, %s)", s, PolicyRetry, PolicyDrop)
}

type Config struct {
	Policy      ConflictPolicy
	MaxAttempts int
	// ActionTimeout folds a seat that has not acted in time. Zero disables
	// the turn clock.
	ActionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Policy:      PolicyRetry,
		MaxAttempts: 5,
	}
}

// Engine applies commands to tables held in a store.
type Engine struct {
	store  store.Store
	pub    broadcast.Publisher
	logger *log.Logger
	clock  quartz.Clock
	rand   *randutil.Source
	cfg    Config

	mu     sync.Mutex
	timers map[string]*turnTimer
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithClock sets the clock used for timestamps and the turn clock.
func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithRandSource sets where deck shuffles come from.
func WithRandSource(src *randutil.Source) Option {
	return func(e *Engine) {
		e.rand = src
	}
}

func New(st store.Store, pub broadcast.Publisher, logger *log.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		pub:    pub,
		logger: logger.WithPrefix("engine"),
		clock:  quartz.NewReal(),
		cfg:    DefaultConfig(),
		timers: make(map[string]*turnTimer),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rand == nil {
		e.rand = randutil.NewSource(0)
	}
	if e.cfg.MaxAttempts < 1 {
		e.cfg.MaxAttempts = 1
	}
	return e
}

// CreateTable creates a table owned by owner. An empty id is replaced with a
// generated one.
func (e *Engine) CreateTable(ctx context.Context, id, name string, owner game.Member, rules game.Rules) (*game.Table, error) {
	if id == "" {
		id = uuid.NewString()
	}
	t := game.NewTable(id, name, owner, rules, e.clock.Now())
	if err := e.store.Create(ctx, t); err != nil {
		return nil, err
	}
	e.logger.Info("Table created", "table", id, "name", name, "owner", owner.PlayerID)
	e.pub.Publish(id, broadcast.RoomUpdate(t))
	return t, nil
}

// EnsureTable creates an ownerless table unless one with id already exists.
func (e *Engine) EnsureTable(ctx context.Context, id, name string, rules game.Rules) error {
	_, err := e.CreateTable(ctx, id, name, game.Member{}, rules)
	if errors.Is(err, store.ErrAlreadyExists) {
		e.logger.Debug("Table already exists", "table", id)
		return nil
	}
	return err
}

// Join adds a member to the table roster.
func (e *Engine) Join(ctx context.Context, tableID string, m game.Member) (Result, error) {
	res, t, err := e.commit(ctx, tableID, "join", func(t *game.Table, _ time.Time) error {
		return game.Join(t, m)
	})
	if err == nil && res.Accepted() {
		e.logger.Info("Player joined", "table", tableID, "player", m.PlayerID)
		e.pub.Publish(tableID, broadcast.RoomUpdate(t))
	}
	return res, err
}

// Leave removes a member. A member seated in the hand in progress folds and
// is removed when the hand ends. When the last member leaves the table is
// deleted and a dissolved roomUpdate is published.
func (e *Engine) Leave(ctx context.Context, tableID, playerID string) (Result, error) {
	var dissolved bool
	res, t, err := e.commit(ctx, tableID, "leave", func(t *game.Table, now time.Time) error {
		var err error
		dissolved, err = game.Leave(t, playerID, now)
		return err
	})
	if err != nil || !res.Accepted() {
		return res, err
	}
	e.logger.Info("Player left", "table", tableID, "player", playerID, "pending", t.Status == game.StatusPlaying)
	if dissolved {
		e.dissolve(ctx, t)
		return res, nil
	}
	e.pub.Publish(tableID, broadcast.RoomUpdate(t))
	e.advanceIfPending(ctx, t)
	return res, nil
}

// dissolve deletes a table that nobody is left at.
func (e *Engine) dissolve(ctx context.Context, t *game.Table) {
	if err := e.store.Delete(ctx, t.ID, t.Version); err != nil {
		// Someone joined in between; the room lives on.
		e.logger.Warn("Failed to dissolve table", "table", t.ID, "error", err)
		return
	}
	e.stopTimer(t.ID)
	e.logger.Info("Table dissolved", "table", t.ID)
	e.pub.Publish(t.ID, broadcast.RoomDissolved())
}

// StartGame deals a new hand. Only the table owner may start it.
func (e *Engine) StartGame(ctx context.Context, tableID, playerID string) (Result, error) {
	res, t, err := e.commit(ctx, tableID, "startGame", func(t *game.Table, now time.Time) error {
		if err := game.CanStart(t, playerID); err != nil {
			return err
		}
		return game.StartHand(t, e.rand.Next(), now)
	})
	if err != nil || !res.Accepted() {
		return res, err
	}
	e.logger.Info("Hand started", "table", tableID, "hand", t.HandID, "number", t.HandNumber, "seats", len(t.Seats))
	e.pub.Publish(tableID, broadcast.RoomUpdate(t))
	e.advanceIfPending(ctx, t)
	return res, nil
}

// Act applies a betting command for playerID. If the command closes the
// betting round the table is advanced after the command has been saved and
// published. The result reflects the command alone; a failed advance is
// completed by the next load.
func (e *Engine) Act(ctx context.Context, tableID, playerID string, cmd game.Command) (Result, error) {
	res, t, err := e.commit(ctx, tableID, string(cmd.Action), func(t *game.Table, now time.Time) error {
		return game.Apply(t, playerID, cmd, now)
	})
	if err != nil || !res.Accepted() {
		return res, err
	}
	e.advanceIfPending(ctx, t)
	return res, nil
}

// Snapshot returns the table as viewerID is allowed to see it.
func (e *Engine) Snapshot(ctx context.Context, tableID, viewerID string) (*game.Table, error) {
	t, err := e.store.Load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return t.ViewFor(viewerID), nil
}

// List returns lobby summaries of every table.
func (e *Engine) List(ctx context.Context) ([]game.RoomSummary, error) {
	tables, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]game.RoomSummary, len(tables))
	for i, t := range tables {
		out[i] = t.Summary()
	}
	return out, nil
}

// Close stops all turn clocks.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, tt := range e.timers {
		tt.timer.Stop()
		delete(e.timers, id)
	}
}
