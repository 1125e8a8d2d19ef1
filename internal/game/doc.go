// Package game implements the table state machine and betting engine for
// multiplayer Texas Hold'em.
//
// The main type is Table, the authoritative record of one room: its roster,
// and while a hand is in progress, the seats, blinds, community cards, pot,
// stage, deck and action pointer.
//
// # Basic Usage
//
//	t := game.NewTable(id, "main", owner, game.DefaultRules(), time.Now())
//	_ = game.Join(t, game.Member{PlayerID: "bob", Name: "Bob", Chips: 1000})
//	_ = game.StartHand(t, rng, time.Now())
//
//	// Apply actions for whoever holds the action pointer
//	err := game.Apply(t, "bob", game.Command{Action: game.Call}, time.Now())
//	if errors.Is(err, game.ErrIllegalAction) {
//	    // rejected, t is unchanged
//	}
//
//	// Close the betting round and move to the next stage(s)
//	if game.RoundPending(t) {
//	    _, _ = game.Advance(t, time.Now())
//	}
//
// # Architecture
//
// Every operation is a pure mutation of a *Table with no I/O:
//   - NextActable: the turn sequencer
//   - Apply: validates a command completely, then applies it
//   - IsRoundOver: the round-completion detector
//   - AdvanceStage/Advance: the stage-transition engine, including settlement
//     at showdown
//   - StartHand: hand-start initialisation (deck, hole cards, blinds)
//
// Persistence, concurrency control and broadcasting live in the engine
// package; this package assumes a single writer per Table value.
package game
