package broadcast

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/holdemtables/internal/game"
	"github.com/lox/holdemtables/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	id     string
	viewer string
	err    error

	mu     sync.Mutex
	events []Event
}

func (r *recorder) ID() string     { return r.id }
func (r *recorder) Viewer() string { return r.viewer }

func (r *recorder) Deliver(ev Event) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) received() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func playingTable(t *testing.T) *game.Table {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl := game.NewTable("t1", "main", game.Member{PlayerID: "alice", Name: "Alice"}, game.DefaultRules(), now)
	require.NoError(t, game.Join(tbl, game.Member{PlayerID: "bob", Name: "Bob"}))
	require.NoError(t, game.StartHand(tbl, randutil.New(5), now))
	return tbl
}

func TestPublishRedactsPerViewer(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(log.New(io.Discard))
	alice := &recorder{id: "c1", viewer: "alice"}
	spectator := &recorder{id: "c2"}
	reg.Subscribe("t1", alice)
	reg.Subscribe("t1", spectator)
	reg.Subscribe("other", &recorder{id: "c3", viewer: "bob"})

	tbl := playingTable(t)
	reg.Publish("t1", TableUpdate(tbl))

	require.Len(t, alice.received(), 1)
	got := alice.received()[0].Table
	assert.Nil(t, got.Deck)
	assert.Len(t, got.Seats[tbl.SeatOf("alice")].Hand, 2)
	assert.Nil(t, got.Seats[tbl.SeatOf("bob")].Hand)

	require.Len(t, spectator.received(), 1)
	for _, s := range spectator.received()[0].Table.Seats {
		assert.Nil(t, s.Hand)
	}

	assert.NotNil(t, tbl.Deck, "publishing does not redact the source table")
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(log.New(io.Discard))
	sub := &recorder{id: "c1"}
	reg.Subscribe("t1", sub)
	reg.Subscribe("t1", sub)
	reg.Subscribe("t2", sub)
	assert.Equal(t, 1, reg.Count("t1"))

	reg.Unsubscribe("t1", sub)
	assert.Equal(t, 0, reg.Count("t1"))
	assert.Equal(t, 1, reg.Count("t2"))

	reg.UnsubscribeAll(sub)
	assert.Equal(t, 0, reg.Count("t2"))

	reg.Publish("t1", RoomDissolved())
	assert.Empty(t, sub.received())
}

func TestFailingSubscriberIsDropped(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(log.New(io.Discard))
	bad := &recorder{id: "bad", err: errors.New("buffer full")}
	good := &recorder{id: "good"}
	reg.Subscribe("t1", bad)
	reg.Subscribe("t1", good)

	reg.Publish("t1", RoomUpdate(playingTable(t)))
	assert.Equal(t, 1, reg.Count("t1"))
	assert.Len(t, good.received(), 1)
}

func TestEventJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(RoomDissolved())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"roomUpdate","room":null}`, string(b))

	tbl := playingTable(t)
	b, err = json.Marshal(RoomUpdate(tbl))
	require.NoError(t, err)
	var room struct {
		Type string `json:"type"`
		Room struct {
			ID      string `json:"id"`
			OwnerID string `json:"ownerId"`
			Status  string `json:"status"`
		} `json:"room"`
	}
	require.NoError(t, json.Unmarshal(b, &room))
	assert.Equal(t, "roomUpdate", room.Type)
	assert.Equal(t, "t1", room.Room.ID)
	assert.Equal(t, "alice", room.Room.OwnerID)
	assert.Equal(t, "playing", room.Room.Status)

	b, err = json.Marshal(TableUpdate(tbl.ViewFor("alice")))
	require.NoError(t, err)
	var update struct {
		Type  string `json:"type"`
		Table struct {
			Stage          string   `json:"stage"`
			CommunityCards []string `json:"communityCards"`
			Seats          []struct {
				Hand []string `json:"hand"`
			} `json:"seats"`
		} `json:"table"`
	}
	require.NoError(t, json.Unmarshal(b, &update))
	assert.Equal(t, "tableUpdate", update.Type)
	assert.Equal(t, "preflop", update.Table.Stage)
	hand := update.Table.Seats[tbl.SeatOf("alice")].Hand
	require.Len(t, hand, 2)
	assert.Len(t, hand[0], 2, "cards are two character tokens")

	_, err = json.Marshal(Event{Type: "bogus"})
	assert.Error(t, err)
}

func TestPublishKeepsVersionOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(log.New(io.Discard))
	sub := &recorder{id: "c1", viewer: "alice"}
	reg.Subscribe("t1", sub)

	newer := playingTable(t)
	newer.Version = 6
	older := newer.Clone()
	older.Version = 5

	reg.Publish("t1", TableUpdate(newer))
	reg.Publish("t1", TableUpdate(older))
	reg.Publish("t1", TableUpdate(newer))
	require.Len(t, sub.received(), 1)
	assert.Equal(t, int64(6), sub.received()[0].Table.Version)

	reg.Publish("t1", RoomUpdate(older))
	require.Len(t, sub.received(), 2, "room summaries are not versioned")

	reg.Publish("t1", RoomDissolved())
	fresh := playingTable(t)
	fresh.Version = 1
	reg.Publish("t1", TableUpdate(fresh))
	events := sub.received()
	require.Len(t, events, 4)
	assert.Equal(t, int64(1), events[3].Table.Version)
}

func TestPublishConcurrentWritersEndOnNewest(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(log.New(io.Discard))
	sub := &recorder{id: "c1"}
	reg.Subscribe("t1", sub)

	base := playingTable(t)
	var wg sync.WaitGroup
	for v := int64(1); v <= 20; v++ {
		snap := base.Clone()
		snap.Version = v
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Publish("t1", TableUpdate(snap))
		}()
	}
	wg.Wait()

	events := sub.received()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Table.Version, events[i-1].Table.Version)
	}
	assert.Equal(t, int64(20), events[len(events)-1].Table.Version)
}
