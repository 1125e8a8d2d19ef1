package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/holdemtables/internal/broadcast"
	"github.com/lox/holdemtables/internal/game"
	"github.com/lox/holdemtables/internal/store"
)

// mutation changes a loaded table in place, or returns an error and leaves it
// untouched.
type mutation func(t *game.Table, now time.Time) error

var errStaleTimer = errors.New("turn timer is stale")

// commit runs fn in a read-apply-write cycle. The saved table is published
// and returned with an Accepted result.
func (e *Engine) commit(ctx context.Context, tableID, op string, fn mutation) (Result, *game.Table, error) {
	logger := e.logger.With("table", tableID, "op", op)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, nil, err
		}

		t, err := e.load(ctx, tableID)
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("Dropping command for missing table")
			return Result{Outcome: Dropped, Reason: "table not found"}, nil, nil
		}
		if err != nil {
			return Result{}, nil, err
		}

		if err := fn(t, e.clock.Now()); err != nil {
			res, ok := classify(err)
			if !ok {
				return Result{}, nil, err
			}
			logger.Warn("Command not applied", "outcome", res.Outcome, "reason", res.Reason)
			return res, nil, nil
		}

		err = e.store.Save(ctx, t)
		switch {
		case err == nil:
			logger.Debug("Command applied", "version", t.Version, "attempt", attempt)
			e.pub.Publish(tableID, broadcast.TableUpdate(t))
			e.arm(t)
			return Result{Outcome: Accepted}, t, nil
		case errors.Is(err, store.ErrNotFound):
			return Result{Outcome: Dropped, Reason: "table not found"}, nil, nil
		case !errors.Is(err, store.ErrVersionConflict):
			logger.Error("Failed to save table", "error", err)
			return Result{}, nil, err
		case e.cfg.Policy == PolicyDrop:
			logger.Debug("Dropped stale write", "version", t.Version)
			return Result{Outcome: Dropped, Reason: "stale write"}, nil, nil
		case attempt >= e.cfg.MaxAttempts:
			logger.Warn("Giving up after write conflicts", "attempts", attempt)
			return Result{}, nil, ErrBusy
		default:
			logger.Warn("Write conflict, retrying", "attempt", attempt)
		}
	}
}

// load reads the table, first completing any stage advance that a previous
// writer closed the round for but never saved.
func (e *Engine) load(ctx context.Context, tableID string) (*game.Table, error) {
	t, err := e.store.Load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if game.RoundPending(t) {
		e.logger.Info("Recovering pending stage advance", "table", tableID, "stage", t.Stage)
		return e.advance(ctx, t)
	}
	return t, nil
}

// advanceIfPending runs the stage transition for a table whose last write
// closed the betting round. A failure here does not undo the write that
// closed the round: the table stays pending and the next load completes the
// advance.
func (e *Engine) advanceIfPending(ctx context.Context, t *game.Table) {
	if !game.RoundPending(t) {
		return
	}
	if _, err := e.advance(ctx, t.Clone()); err != nil {
		e.logger.Warn("Stage advance deferred", "table", t.ID, "error", err)
	}
}

func (e *Engine) advance(ctx context.Context, t *game.Table) (*game.Table, error) {
	for attempt := 1; game.RoundPending(t); attempt++ {
		entered, err := game.Advance(t, e.clock.Now())
		if err != nil {
			e.logger.Error("Failed to advance stage", "table", t.ID, "error", err)
			return nil, fmt.Errorf("advancing table %s: %w", t.ID, err)
		}

		err = e.store.Save(ctx, t)
		if err == nil {
			e.logger.Info("Stage advanced", "table", t.ID, "hand", t.HandID, "stages", entered)
			e.pub.Publish(t.ID, broadcast.TableUpdate(t))
			e.arm(t)
			if t.Status == game.StatusWaiting {
				e.logger.Info("Hand complete", "table", t.ID, "hand", t.HandID, "uncontested", t.Results.Uncontested)
				if len(t.Members) == 0 {
					e.dissolve(ctx, t)
					return t, nil
				}
				e.pub.Publish(t.ID, broadcast.RoomUpdate(t))
			}
			return t, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			e.logger.Error("Failed to save table", "table", t.ID, "error", err)
			return nil, err
		}
		if attempt >= e.cfg.MaxAttempts {
			return nil, ErrBusy
		}

		e.logger.Debug("Stage advance lost a write race", "table", t.ID, "attempt", attempt)
		if t, err = e.store.Load(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// classify maps a rejected mutation onto a Result. Unknown errors are not
// rejections and are returned to the caller.
func classify(err error) (Result, bool) {
	var ae *game.ActionError
	switch {
	case errors.As(err, &ae):
		return Result{Outcome: Rejected, Reason: ae.Reason}, true
	case errors.Is(err, game.ErrPlayerNotFound), errors.Is(err, errStaleTimer):
		return Result{Outcome: Dropped, Reason: err.Error()}, true
	case errors.Is(err, game.ErrIllegalAction),
		errors.Is(err, game.ErrNotEnoughPlayers),
		errors.Is(err, game.ErrNotOwner),
		errors.Is(err, game.ErrTableFull),
		errors.Is(err, game.ErrAlreadyJoined):
		return Result{Outcome: Rejected, Reason: err.Error()}, true
	}
	return Result{}, false
}
