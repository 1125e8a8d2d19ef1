package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/holdemtables/internal/broadcast"
	"github.com/lox/holdemtables/internal/game"
	"github.com/lox/holdemtables/internal/randutil"
	"github.com/lox/holdemtables/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type published struct {
	tableID string
	ev      broadcast.Event
}

// recordingPublisher keeps copies of every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(tableID string, ev broadcast.Event) {
	if ev.Table != nil {
		ev.Table = ev.Table.Clone()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{tableID, ev})
}

func (p *recordingPublisher) tableUpdates() []*game.Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*game.Table
	for _, e := range p.events {
		if e.ev.Type == broadcast.TypeTableUpdate {
			out = append(out, e.ev.Table)
		}
	}
	return out
}

func (p *recordingPublisher) last() broadcast.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1].ev
}

// conflictStore fails the next n saves with a version conflict.
type conflictStore struct {
	store.Store
	conflicts atomic.Int32
	saves     atomic.Int32
}

func (s *conflictStore) Save(ctx context.Context, t *game.Table) error {
	s.saves.Add(1)
	if s.conflicts.Add(-1) >= 0 {
		return store.ErrVersionConflict
	}
	return s.Store.Save(ctx, t)
}

// flakyStore lets the next ok saves through and fails the rest.
type flakyStore struct {
	store.Store
	ok atomic.Int32
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Save(ctx context.Context, t *game.Table) error {
	if s.ok.Add(-1) < 0 {
		return errDiskFull
	}
	return s.Store.Save(ctx, t)
}

func newTestEngine(t *testing.T, st store.Store, opts ...Option) (*Engine, *recordingPublisher) {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	pub := &recordingPublisher{}
	opts = append([]Option{WithRandSource(randutil.NewSource(42))}, opts...)
	e := New(st, pub, log.New(io.Discard), opts...)
	t.Cleanup(e.Close)
	return e, pub
}

// headsUp creates a started heads-up table: alice is dealer and acts first.
func headsUp(t *testing.T, e *Engine) string {
	t.Helper()
	ctx := context.Background()
	tbl, err := e.CreateTable(ctx, "", "main", game.Member{PlayerID: "alice", Name: "Alice"}, game.DefaultRules())
	require.NoError(t, err)
	mustAccept(t)(e.Join(ctx, tbl.ID, game.Member{PlayerID: "bob", Name: "Bob"}))
	mustAccept(t)(e.StartGame(ctx, tbl.ID, "alice"))
	return tbl.ID
}

func mustAccept(t *testing.T) func(Result, error) {
	return func(res Result, err error) {
		t.Helper()
		require.NoError(t, err)
		require.Equal(t, Accepted, res.Outcome, res.Reason)
	}
}

func TestActionPublishedBeforeAdvance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, pub := newTestEngine(t, nil)
	id := headsUp(t, e)

	mustAccept(t)(e.Act(ctx, id, "alice", game.Command{Action: game.Call}))
	before := len(pub.tableUpdates())
	mustAccept(t)(e.Act(ctx, id, "bob", game.Command{Action: game.Check}))

	updates := pub.tableUpdates()[before:]
	require.Len(t, updates, 2)
	assert.Equal(t, game.Preflop, updates[0].Stage, "the closing action is published first")
	assert.Equal(t, game.NoSeat, updates[0].ActionIndex)
	assert.Equal(t, game.Flop, updates[1].Stage)
	assert.Len(t, updates[1].CommunityCards, 3)
	assert.Greater(t, updates[1].Version, updates[0].Version)

	snap, err := e.Snapshot(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, game.Flop, snap.Stage)
	assert.Nil(t, snap.Deck)
	assert.Nil(t, snap.Seats[snap.SeatOf("alice")].Hand)
}

func TestPlayHandToCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, pub := newTestEngine(t, nil)
	id := headsUp(t, e)

	mustAccept(t)(e.Act(ctx, id, "alice", game.Command{Action: game.AllIn}))
	mustAccept(t)(e.Act(ctx, id, "bob", game.Command{Action: game.Call}))

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, snap.Status)
	require.NotNil(t, snap.Results)
	assert.Equal(t, 2000, snap.Members[0].Chips+snap.Members[1].Chips)

	last := pub.last()
	assert.Equal(t, broadcast.TypeRoomUpdate, last.Type)
	require.NotNil(t, last.Room)
	assert.Equal(t, game.StatusWaiting, last.Room.Status)
}

func TestCommandOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, nil)
	id := headsUp(t, e)

	res, err := e.Act(ctx, id, "bob", game.Command{Action: game.Check})
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)
	assert.Equal(t, "not your turn", res.Reason)

	res, err = e.Act(ctx, id, "alice", game.Command{Action: game.Raise, Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)

	res, err = e.Act(ctx, id, "mallory", game.Command{Action: game.Fold})
	require.NoError(t, err)
	assert.Equal(t, Dropped, res.Outcome)

	res, err = e.Act(ctx, "no-such-table", "alice", game.Command{Action: game.Fold})
	require.NoError(t, err)
	assert.Equal(t, Dropped, res.Outcome)

	res, err = e.StartGame(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome, "hand already running")
}

func TestStartGameAuthority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, nil)

	require.NoError(t, e.EnsureTable(ctx, "main", "Main", game.DefaultRules()))
	require.NoError(t, e.EnsureTable(ctx, "main", "Main", game.DefaultRules()), "ensuring twice is fine")

	mustAccept(t)(e.Join(ctx, "main", game.Member{PlayerID: "alice"}))
	res, err := e.StartGame(ctx, "main", "alice")
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome, "needs two players")

	mustAccept(t)(e.Join(ctx, "main", game.Member{PlayerID: "bob"}))
	res, err = e.StartGame(ctx, "main", "bob")
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome, "only the owner starts")

	mustAccept(t)(e.StartGame(ctx, "main", "alice"))
}

func TestConflictPolicies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T, cfg Config, conflicts int32) (*Engine, *conflictStore, string) {
		cs := &conflictStore{Store: store.NewMemory()}
		e, _ := newTestEngine(t, cs, WithConfig(cfg))
		id := headsUp(t, e)
		cs.conflicts.Store(conflicts)
		cs.saves.Store(0)
		return e, cs, id
	}

	t.Run("drop discards the command", func(t *testing.T) {
		e, cs, id := setup(t, Config{Policy: PolicyDrop, MaxAttempts: 5}, 1)

		res, err := e.Act(ctx, id, "alice", game.Command{Action: game.Call})
		require.NoError(t, err)
		assert.Equal(t, Dropped, res.Outcome)
		assert.Equal(t, int32(1), cs.saves.Load())

		snap, err := e.Snapshot(ctx, id, "")
		require.NoError(t, err)
		assert.Empty(t, snap.History, "the dropped call never landed")
	})

	t.Run("retry recovers", func(t *testing.T) {
		e, cs, id := setup(t, Config{Policy: PolicyRetry, MaxAttempts: 5}, 2)

		mustAccept(t)(e.Act(ctx, id, "alice", game.Command{Action: game.Call}))
		assert.Equal(t, int32(3), cs.saves.Load())

		snap, err := e.Snapshot(ctx, id, "")
		require.NoError(t, err)
		assert.Len(t, snap.History, 1)
	})

	t.Run("retry gives up busy", func(t *testing.T) {
		e, cs, id := setup(t, Config{Policy: PolicyRetry, MaxAttempts: 3}, 100)

		_, err := e.Act(ctx, id, "alice", game.Command{Action: game.Call})
		assert.ErrorIs(t, err, ErrBusy)
		assert.Equal(t, int32(3), cs.saves.Load())
	})
}

func TestConcurrentJoins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, nil, WithConfig(Config{Policy: PolicyRetry, MaxAttempts: 100}))
	require.NoError(t, e.EnsureTable(ctx, "main", "Main", game.DefaultRules()))

	var g errgroup.Group
	for i := range 6 {
		g.Go(func() error {
			res, err := e.Join(ctx, "main", game.Member{PlayerID: fmt.Sprintf("p%d", i)})
			if err != nil {
				return err
			}
			if !res.Accepted() {
				return fmt.Errorf("p%d: %s %s", i, res.Outcome, res.Reason)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	snap, err := e.Snapshot(ctx, "main", "")
	require.NoError(t, err)
	assert.Len(t, snap.Members, 6)
	assert.Equal(t, int64(7), snap.Version)
}

func TestConcurrentDuplicateActions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, nil, WithConfig(Config{Policy: PolicyRetry, MaxAttempts: 100}))
	id := headsUp(t, e)

	var (
		g        errgroup.Group
		accepted atomic.Int32
	)
	for range 8 {
		g.Go(func() error {
			res, err := e.Act(ctx, id, "alice", game.Command{Action: game.Raise, Amount: 10})
			if res.Accepted() {
				accepted.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), accepted.Load())

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Len(t, snap.History, 1)
	assert.Equal(t, 11, snap.CurrentBet)
}

func TestRecoversPendingAdvance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory()
	e, _ := newTestEngine(t, st)
	id := headsUp(t, e)

	// Close the round behind the engine's back without advancing.
	tbl, err := st.Load(ctx, id)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, game.Apply(tbl, "alice", game.Command{Action: game.Call}, now))
	require.NoError(t, game.Apply(tbl, "bob", game.Command{Action: game.Check}, now))
	require.NoError(t, st.Save(ctx, tbl))
	require.True(t, game.RoundPending(tbl))

	mustAccept(t)(e.Act(ctx, id, "bob", game.Command{Action: game.Check}))

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, game.Flop, snap.Stage)
	assert.Equal(t, snap.SeatOf("alice"), snap.ActionIndex)
}

func TestLeaveDissolvesRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, pub := newTestEngine(t, nil)

	tbl, err := e.CreateTable(ctx, "", "solo", game.Member{PlayerID: "alice"}, game.DefaultRules())
	require.NoError(t, err)
	mustAccept(t)(e.Join(ctx, tbl.ID, game.Member{PlayerID: "bob"}))

	mustAccept(t)(e.Leave(ctx, tbl.ID, "alice"))
	last := pub.last()
	require.NotNil(t, last.Room)
	assert.Equal(t, "bob", last.Room.OwnerID)

	mustAccept(t)(e.Leave(ctx, tbl.ID, "bob"))
	last = pub.last()
	assert.Equal(t, broadcast.TypeRoomUpdate, last.Type)
	assert.Nil(t, last.Room)

	_, err = e.Snapshot(ctx, tbl.ID, "")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rooms, err := e.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestLeaveMidHand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, pub := newTestEngine(t, nil)
	id := headsUp(t, e)

	// alice owns the table and is first to act.
	mustAccept(t)(e.Leave(ctx, id, "alice"))

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, snap.Status, "the fold ends the hand")
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "bob", snap.Members[0].PlayerID)
	assert.Equal(t, 1001, snap.Members[0].Chips)
	assert.Equal(t, "bob", snap.OwnerID)

	last := pub.last()
	require.NotNil(t, last.Room)
	assert.Equal(t, "bob", last.Room.OwnerID)
	assert.Len(t, last.Room.Members, 1)
}

func TestEveryoneLeavingMidHandDissolves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, pub := newTestEngine(t, nil)
	id := headsUp(t, e)

	mustAccept(t)(e.Act(ctx, id, "alice", game.Command{Action: game.AllIn}))
	mustAccept(t)(e.Leave(ctx, id, "alice"))

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, game.StatusPlaying, snap.Status, "bob still has to answer the all-in")
	assert.True(t, snap.Members[0].Leaving)

	mustAccept(t)(e.Leave(ctx, id, "bob"))

	_, err = e.Snapshot(ctx, id, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
	last := pub.last()
	assert.Equal(t, broadcast.TypeRoomUpdate, last.Type)
	assert.Nil(t, last.Room)
}

func TestFailedAdvanceKeepsActionAccepted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := &flakyStore{Store: store.NewMemory()}
	fs.ok.Store(1000)
	e, _ := newTestEngine(t, fs)
	id := headsUp(t, e)

	mustAccept(t)(e.Act(ctx, id, "alice", game.Command{Action: game.Call}))

	// bob's check is saved; the flop that follows is not.
	fs.ok.Store(1)
	mustAccept(t)(e.Act(ctx, id, "bob", game.Command{Action: game.Check}))

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, game.Preflop, snap.Stage)
	assert.True(t, game.RoundPending(snap))

	fs.ok.Store(1000)
	mustAccept(t)(e.Act(ctx, id, "bob", game.Command{Action: game.Check}))

	snap, err = e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, game.Flop, snap.Stage)
	assert.Equal(t, game.Check, snap.History[len(snap.History)-1].Action)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t, nil)
	require.NoError(t, e.EnsureTable(ctx, "a", "A", game.DefaultRules()))
	require.NoError(t, e.EnsureTable(ctx, "b", "B", game.DefaultRules()))

	rooms, err := e.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "a", rooms[0].ID)
	assert.Equal(t, 6, rooms[1].MaxPlayers)
}

func TestParseConflictPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseConflictPolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)
	_, err = ParseConflictPolicy("ignore")
	assert.Error(t, err)
}

func TestTurnClockFoldsIdleSeat(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	cfg := DefaultConfig()
	cfg.ActionTimeout = 30 * time.Second
	e, _ := newTestEngine(t, nil, WithConfig(cfg), WithClock(clock))
	id := headsUp(t, e)

	// alice acts in time, which re-arms the clock for bob
	mustAccept(t)(e.Act(ctx, id, "alice", game.Command{Action: game.Raise, Amount: 10}))

	d, w := clock.AdvanceNext()
	assert.Equal(t, 30*time.Second, d)
	w.MustWait(ctx)

	require.Eventually(t, func() bool {
		snap, err := e.Snapshot(ctx, id, "")
		return err == nil && snap.Status == game.StatusWaiting
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	require.NotEmpty(t, snap.History)
	lastAction := snap.History[len(snap.History)-1]
	assert.Equal(t, "bob", lastAction.PlayerID)
	assert.Equal(t, game.Fold, lastAction.Action)
	assert.True(t, snap.Results.Uncontested)
	assert.Equal(t, 1002, snap.Members[0].Chips)
}

func TestStaleTurnTimerIsIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := quartz.NewMock(t)
	cfg := DefaultConfig()
	cfg.ActionTimeout = time.Minute
	e, _ := newTestEngine(t, nil, WithConfig(cfg), WithClock(clock))
	id := headsUp(t, e)

	tbl, err := e.store.Load(ctx, id)
	require.NoError(t, err)
	stale := tokenFor(tbl)

	mustAccept(t)(e.Act(ctx, id, "alice", game.Command{Action: game.Call}))
	e.expire(id, stale)

	snap, err := e.Snapshot(ctx, id, "")
	require.NoError(t, err)
	assert.Len(t, snap.History, 1, "the stale timer folded nobody")
}
