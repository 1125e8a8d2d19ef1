package engine

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/holdemtables/internal/game"
)

// turnToken identifies one pending decision. A timer whose token no longer
// matches the stored table has been overtaken and does nothing.
type turnToken struct {
	hand    string
	seat    int
	actions int
}

func tokenFor(t *game.Table) turnToken {
	return turnToken{hand: t.HandID, seat: t.ActionIndex, actions: len(t.History)}
}

type turnTimer struct {
	timer   *quartz.Timer
	token   turnToken
	version int64
}

// arm restarts the turn clock for the seat to act on t.
func (e *Engine) arm(t *game.Table) {
	if e.cfg.ActionTimeout <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.timers[t.ID]; ok {
		if prev.version > t.Version {
			return
		}
		prev.timer.Stop()
		delete(e.timers, t.ID)
	}
	if t.Status != game.StatusPlaying || t.ActionIndex == game.NoSeat {
		return
	}

	tableID, tok := t.ID, tokenFor(t)
	e.timers[tableID] = &turnTimer{
		token:   tok,
		version: t.Version,
		timer: e.clock.AfterFunc(e.cfg.ActionTimeout, func() {
			e.expire(tableID, tok)
		}, "engine", "turn"),
	}
}

func (e *Engine) stopTimer(tableID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tt, ok := e.timers[tableID]; ok {
		tt.timer.Stop()
		delete(e.timers, tableID)
	}
}

// expire folds the seat that let its turn clock run out.
func (e *Engine) expire(tableID string, tok turnToken) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var player string
	res, t, err := e.commit(ctx, tableID, "timeout", func(t *game.Table, now time.Time) error {
		if tokenFor(t) != tok {
			return errStaleTimer
		}
		player = t.ToAct().PlayerID
		return game.Apply(t, player, game.Command{Action: game.Fold}, now)
	})
	if err != nil {
		e.logger.Error("Turn timeout failed", "table", tableID, "error", err)
		return
	}
	if !res.Accepted() {
		return
	}

	e.logger.Info("Turn timed out, folding", "table", tableID, "player", player)
	e.advanceIfPending(ctx, t)
}
