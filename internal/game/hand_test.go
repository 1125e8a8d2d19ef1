package game

import (
	"testing"

	"github.com/lox/holdemtables/internal/randutil"
	"github.com/lox/holdemtables/poker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartHand(t *testing.T) {
	t.Parallel()

	t.Run("three handed positions and blinds", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 1000, 1000)
		startTestHand(t, tbl)

		assert.Equal(t, StatusPlaying, tbl.Status)
		assert.Equal(t, Preflop, tbl.Stage)
		assert.Equal(t, 0, tbl.DealerIndex)
		assert.Equal(t, 1, tbl.SmallBlindIndex)
		assert.Equal(t, 2, tbl.BigBlindIndex)
		assert.Equal(t, 1, tbl.Seats[1].Bet)
		assert.Equal(t, 2, tbl.Seats[2].Bet)
		assert.Equal(t, 3, tbl.Pot)
		assert.Equal(t, 2, tbl.CurrentBet)
		assert.Equal(t, 2, tbl.MinRaise)
		assert.Equal(t, 2, tbl.LastAggressor)
		assert.Equal(t, 0, tbl.ActionIndex)
		assert.Equal(t, []bool{false, false, false}, tbl.Acted)
		assert.Equal(t, 1, tbl.HandNumber)
		assert.NotEmpty(t, tbl.HandID)
	})

	t.Run("heads up dealer posts the small blind", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 1000)
		startTestHand(t, tbl)

		assert.Equal(t, 0, tbl.SmallBlindIndex)
		assert.Equal(t, 1, tbl.BigBlindIndex)
		assert.Equal(t, 0, tbl.ActionIndex, "dealer acts first preflop")
	})

	t.Run("deals two cards per seat", func(t *testing.T) {
		for n := 2; n <= 6; n++ {
			stacks := make([]int, n)
			for i := range stacks {
				stacks[i] = 100
			}
			tbl := newTestTable(t, stacks...)
			startTestHand(t, tbl)

			assert.Equal(t, 52-2*n, tbl.Deck.Remaining())
			seen := make(map[poker.Card]bool)
			for _, s := range tbl.Seats {
				require.Len(t, s.Hand, 2)
				for _, c := range s.Hand {
					assert.False(t, seen[c], "duplicate card %s", c)
					seen[c] = true
				}
			}
			for _, c := range tbl.Deck.Cards() {
				assert.False(t, seen[c], "dealt card %s still in deck", c)
			}
		}
	})

	t.Run("deals round robin from the left of the dealer", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 1000, 1000)
		cards := poker.MustParseCards("2C 3C 4C 5C 6C 7C 8C 9C TC JC QC")
		startTestHand(t, tbl, WithDeck(poker.NewDeckFromCards(cards...)))

		assert.Equal(t, []poker.Card{cards[2], cards[5]}, tbl.Seats[0].Hand)
		assert.Equal(t, []poker.Card{cards[0], cards[3]}, tbl.Seats[1].Hand)
		assert.Equal(t, []poker.Card{cards[1], cards[4]}, tbl.Seats[2].Hand)
	})

	t.Run("seat ids are unique", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 1000, 1000)
		require.NoError(t, StartHand(tbl, randutil.New(1), testNow))

		ids := map[string]bool{tbl.HandID: true}
		for _, s := range tbl.Seats {
			assert.False(t, ids[s.ID])
			ids[s.ID] = true
		}
	})

	t.Run("members without chips sit out", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 0, 1000)
		tbl.Members[1].Chips = 0
		startTestHand(t, tbl)

		require.Len(t, tbl.Seats, 2)
		assert.Equal(t, NoSeat, tbl.SeatOf("p2"))
		assert.Equal(t, 1, tbl.SeatOf("p3"))
	})

	t.Run("short blinds go all-in", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 1000, 1)
		startTestHand(t, tbl)

		bb := tbl.Seats[2]
		assert.True(t, bb.AllIn)
		assert.Equal(t, 1, bb.Bet)
		assert.Equal(t, 1, tbl.CurrentBet)
		assert.True(t, tbl.Acted[2])
	})

	t.Run("everyone all-in from the blinds", func(t *testing.T) {
		tbl := newTestTable(t, 1, 2)
		startTestHand(t, tbl)

		assert.True(t, IsRoundOver(tbl))
		assert.Equal(t, NoSeat, tbl.ActionIndex)
	})

	t.Run("requires two funded players", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 0)
		tbl.Members[1].Chips = 0
		err := StartHand(tbl, randutil.New(1), testNow)
		assert.ErrorIs(t, err, ErrNotEnoughPlayers)
		assert.Equal(t, StatusWaiting, tbl.Status)
	})

	t.Run("rejects a second start", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 1000)
		startTestHand(t, tbl)
		err := StartHand(tbl, randutil.New(1), testNow)
		assert.ErrorIs(t, err, ErrIllegalAction)
	})

	t.Run("short deck is rejected before mutating", func(t *testing.T) {
		tbl := newTestTable(t, 1000, 1000)
		deck := poker.NewDeckFromCards(poker.MustParseCards("2C 3C 4C")...)
		err := StartHand(tbl, nil, testNow, WithDeck(deck))
		assert.ErrorIs(t, err, poker.ErrDeckExhausted)
		assert.Equal(t, StatusWaiting, tbl.Status)
		assert.Empty(t, tbl.Seats)
	})
}

func TestButtonRotation(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 1000, 1000, 1000)
	var buttons []int
	for range 4 {
		require.NoError(t, StartHand(tbl, randutil.New(3), testNow))
		buttons = append(buttons, tbl.Button)
		foldToWinner(t, tbl)
	}
	assert.Equal(t, []int{0, 1, 2, 0}, buttons)
	assert.Equal(t, 4, tbl.HandNumber)
	assert.Equal(t, 3000, memberChips(tbl))
}

// foldToWinner folds every seat in turn until the hand is settled.
func foldToWinner(t *testing.T, tbl *Table) {
	t.Helper()
	for tbl.Status == StatusPlaying {
		if RoundPending(tbl) {
			_, err := Advance(tbl, testNow)
			require.NoError(t, err)
			continue
		}
		act(t, tbl, tbl.ToAct().PlayerID, Fold)
	}
}
