// Package replication fans trader trade events out to follower accounts:
// creating scaled copied trades on open and settling them on close.
package replication

import (
	"context"
	"errors"
	"time"

	"copytrade-backend/internal/database"
	"copytrade-backend/internal/events"
	"copytrade-backend/internal/logging"
	"copytrade-backend/internal/pnl"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultFanoutWorkers bounds how many followers are processed concurrently
// per trade event.
const DefaultFanoutWorkers = 8

// FailureRecorder persists per-follower settlement failures for the retry
// pass. Implemented by database.SettlementTracker.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, failure database.SettlementFailure) error
	ClearFailure(ctx context.Context, copiedTradeID string) error
}

// Engine reacts to trade lifecycle events. Fan-out runs in parallel across
// followers but each follower is an independent atomic unit: a failure there
// is recorded and retried, never blocking the others and never failing the
// trade event that triggered it.
type Engine struct {
	store    database.Store
	recorder FailureRecorder
	eventBus *events.EventBus
	logger   *logging.Logger
	workers  int
}

// NewEngine creates a replication engine. recorder may be nil, in which case
// failures are only logged and picked up by the reconciler's store scan.
func NewEngine(store database.Store, recorder FailureRecorder, eventBus *events.EventBus, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultFanoutWorkers
	}
	return &Engine{
		store:    store,
		recorder: recorder,
		eventBus: eventBus,
		logger:   logging.WithComponent("replication"),
		workers:  workers,
	}
}

// OnTradeOpened creates one copied trade per relation active at this instant.
// The copied quantity is trade quantity x relation ratio, fixed at creation.
// Creation is keyed by (trade, relation), so a retried fan-out cannot
// double-create. Relations activated later never copy this trade
// retroactively.
func (e *Engine) OnTradeOpened(ctx context.Context, trade *database.Trade) {
	relations, err := e.store.ActiveRelationsFor(ctx, trade.TraderID)
	if err != nil {
		e.logger.Error("failed to enumerate relations for fan-out", "trade_id", trade.ID, "error", err)
		e.eventBus.PublishError("replication", "fan-out enumeration failed", err)
		return
	}
	if len(relations) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, relation := range relations {
		relation := relation
		g.Go(func() error {
			copy := &database.CopiedTrade{
				ID:              uuid.New().String(),
				OriginalTradeID: trade.ID,
				RelationID:      relation.ID,
				FollowerID:      relation.FollowerID,
				Quantity:        trade.Quantity * relation.CopyRatio,
				Status:          database.StatusOpen,
				CreatedAt:       time.Now(),
			}

			created, err := e.store.CreateCopiedTrade(gctx, copy)
			if err != nil {
				e.logger.Error("failed to create copied trade",
					"trade_id", trade.ID,
					"relation_id", relation.ID,
					"follower_id", relation.FollowerID,
					"error", err,
				)
				return nil // isolate: other followers proceed
			}
			if created {
				e.eventBus.PublishCopiedTradeCreated(copy)
			}
			return nil
		})
	}

	g.Wait()

	e.logger.Info("trade fanned out to followers",
		"trade_id", trade.ID,
		"trader_id", trade.TraderID,
		"followers", len(relations),
	)
}

// OnTradeClosed settles every still-open copy of the trade, whatever the
// current state of the relation that produced it: a copied position, once
// opened, is always settled. Each settlement closes the copy and credits the
// follower atomically; one that fails is recorded and retried by the
// reconciler without holding up the rest.
func (e *Engine) OnTradeClosed(ctx context.Context, trade *database.Trade) {
	if trade.ExitPrice == nil {
		e.logger.Error("close event without exit price", "trade_id", trade.ID)
		return
	}

	copies, err := e.store.ListOpenCopiesByTrade(ctx, trade.ID)
	if err != nil {
		e.logger.Error("failed to enumerate copies for settlement", "trade_id", trade.ID, "error", err)
		e.eventBus.PublishError("replication", "settlement enumeration failed", err)
		return
	}
	if len(copies) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, copy := range copies {
		copy := copy
		g.Go(func() error {
			e.settleCopy(gctx, copy, trade.Direction, trade.EntryPrice, *trade.ExitPrice)
			return nil
		})
	}

	g.Wait()

	e.logger.Info("copied trades settled",
		"trade_id", trade.ID,
		"copies", len(copies),
	)
}

// settleCopy settles one copied trade using the origin's prices and direction
// but the copy's own quantity.
func (e *Engine) settleCopy(ctx context.Context, copy *database.CopiedTrade, direction database.TradeDirection, entryPrice, exitPrice float64) {
	copyPnl, err := pnl.Calculate(direction, entryPrice, exitPrice, copy.Quantity)
	if err != nil {
		e.recordFailure(ctx, copy, err)
		return
	}

	settled, err := e.store.SettleCopiedTrade(ctx, copy.ID, copyPnl)
	if errors.Is(err, database.ErrAlreadyClosed) {
		// A concurrent path (duplicate close fan-out, reconciler) won; the
		// copy is settled either way.
		return
	}
	if err != nil {
		e.recordFailure(ctx, copy, err)
		return
	}

	if e.recorder != nil {
		if err := e.recorder.ClearFailure(ctx, copy.ID); err != nil {
			e.logger.Warn("failed to clear settlement failure record", "copied_trade_id", copy.ID, "error", err)
		}
	}
	e.eventBus.PublishCopiedTradeSettled(settled)
}

func (e *Engine) recordFailure(ctx context.Context, copy *database.CopiedTrade, cause error) {
	failure := database.SettlementFailure{
		CopiedTradeID:   copy.ID,
		OriginalTradeID: copy.OriginalTradeID,
		FollowerID:      copy.FollowerID,
		Reason:          cause.Error(),
		FailedAt:        time.Now(),
	}

	e.logger.Error("follower settlement failed",
		"copied_trade_id", copy.ID,
		"follower_id", copy.FollowerID,
		"error", cause,
	)

	if e.recorder != nil {
		if err := e.recorder.RecordFailure(ctx, failure); err != nil {
			e.logger.Warn("failed to record settlement failure", "copied_trade_id", copy.ID, "error", err)
		}
	}
	e.eventBus.PublishSettlementFailed(failure)
}
