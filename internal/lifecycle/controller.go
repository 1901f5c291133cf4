// Package lifecycle controls the open/close state machine of original trades.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"copytrade-backend/internal/database"
	"copytrade-backend/internal/events"
	"copytrade-backend/internal/logging"
	"copytrade-backend/internal/pnl"

	"github.com/google/uuid"
)

// Replicator receives trade lifecycle notifications and fans them out to
// followers. Failures inside the replicator never fail the triggering call.
type Replicator interface {
	OnTradeOpened(ctx context.Context, trade *database.Trade)
	OnTradeClosed(ctx context.Context, trade *database.Trade)
}

// Controller opens and closes trades, validating state transitions and
// delegating fan-out to the replication engine.
type Controller struct {
	store      database.Store
	replicator Replicator
	eventBus   *events.EventBus
	logger     *logging.Logger
}

// NewController creates a trade lifecycle controller.
func NewController(store database.Store, replicator Replicator, eventBus *events.EventBus) *Controller {
	return &Controller{
		store:      store,
		replicator: replicator,
		eventBus:   eventBus,
		logger:     logging.WithComponent("lifecycle"),
	}
}

// OpenTrade validates and records a new open trade for a trader, then hands
// it to the replication engine so active followers get their copies.
// All validation happens before any write.
func (c *Controller) OpenTrade(ctx context.Context, traderID, symbol string, direction database.TradeDirection, entryPrice, quantity float64) (*database.Trade, error) {
	if quantity <= 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return nil, database.ErrInvalidQuantity
	}
	if entryPrice <= 0 || math.IsNaN(entryPrice) || math.IsInf(entryPrice, 0) {
		return nil, database.ErrInvalidPrice
	}

	trader, err := c.store.GetUser(ctx, traderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up trader: %w", err)
	}
	if trader == nil || !trader.IsTrader {
		return nil, database.ErrInvalidUser
	}

	trade := &database.Trade{
		ID:         uuid.New().String(),
		TraderID:   traderID,
		Symbol:     symbol,
		Direction:  direction,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Status:     database.StatusOpen,
		CreatedAt:  time.Now(),
	}

	if err := c.store.CreateTrade(ctx, trade); err != nil {
		return nil, err
	}

	c.logger.Info("trade opened",
		"trade_id", trade.ID,
		"trader_id", traderID,
		"symbol", symbol,
		"direction", string(direction),
		"entry_price", entryPrice,
		"quantity", quantity,
	)
	c.eventBus.PublishTradeOpened(trade)
	c.replicator.OnTradeOpened(ctx, trade)

	return trade, nil
}

// CloseTrade transitions a trade OPEN->CLOSED at exitPrice. The transition is
// a conditional update in the store: under concurrent duplicate closes exactly
// one caller wins, the rest get ErrAlreadyClosed. The winner's exit price,
// pnl and closedAt commit together with the status, and the trader's balance
// is credited in the same transaction, so a cancelled or crashed close can
// never leave the trade half-transitioned. Follower settlement runs after the
// commit and its failures are retried independently, never surfaced here.
func (c *Controller) CloseTrade(ctx context.Context, tradeID string, exitPrice float64) (*database.Trade, error) {
	trade, err := c.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up trade: %w", err)
	}
	if trade == nil {
		return nil, database.ErrTradeNotFound
	}
	if trade.Status == database.StatusClosed {
		return nil, database.ErrAlreadyClosed
	}

	tradePnl, err := pnl.Calculate(trade.Direction, trade.EntryPrice, exitPrice, trade.Quantity)
	if err != nil {
		return nil, err
	}

	closed, err := c.store.CloseTradeOnce(ctx, tradeID, exitPrice, tradePnl, time.Now())
	if err != nil {
		return nil, err
	}

	c.logger.Info("trade closed",
		"trade_id", closed.ID,
		"trader_id", closed.TraderID,
		"exit_price", exitPrice,
		"pnl", tradePnl,
	)
	c.eventBus.PublishTradeClosed(closed)
	c.replicator.OnTradeClosed(ctx, closed)

	return closed, nil
}
