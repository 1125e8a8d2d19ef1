package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/lox/holdemtables/internal/randutil"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestTable returns a waiting table with members p1..pN holding the given
// stacks, on 1/2 blinds.
func newTestTable(t *testing.T, stacks ...int) *Table {
	t.Helper()
	rules := DefaultRules()
	rules.MaxPlayers = max(len(stacks), 2)
	tbl := NewTable("table-1", "test", Member{}, rules, testNow)
	for i, chips := range stacks {
		id := fmt.Sprintf("p%d", i+1)
		require.NoError(t, Join(tbl, Member{PlayerID: id, Name: "Player " + id, Chips: chips}))
	}
	return tbl
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// startTestHand deals a hand with the button on roster index 0 unless opts
// say otherwise.
func startTestHand(t *testing.T, tbl *Table, opts ...HandOption) {
	t.Helper()
	opts = append([]HandOption{WithButton(0), WithIDs(sequentialIDs())}, opts...)
	require.NoError(t, StartHand(tbl, randutil.New(42), testNow, opts...))
}

func act(t *testing.T, tbl *Table, playerID string, action Action, amount ...int) {
	t.Helper()
	cmd := Command{Action: action}
	if len(amount) > 0 {
		cmd.Amount = amount[0]
	}
	require.NoError(t, Apply(tbl, playerID, cmd, testNow), "%s %s", playerID, action)
}

func potTotal(tbl *Table) int {
	total := 0
	for _, s := range tbl.Seats {
		total += s.TotalBet
	}
	return total
}

func memberChips(tbl *Table) int {
	total := 0
	for _, m := range tbl.Members {
		total += m.Chips
	}
	return total
}
