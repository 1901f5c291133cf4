package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// TRADE OPERATIONS
// =====================================================

// CreateTrade inserts a new open trade.
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (
			id, trader_id, symbol, direction, entry_price, exit_price,
			quantity, pnl, status, created_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		trade.ID,
		trade.TraderID,
		trade.Symbol,
		string(trade.Direction),
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Quantity,
		trade.Pnl,
		string(trade.Status),
		trade.CreatedAt,
		trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	return nil
}

const tradeColumns = `id, trader_id, symbol, direction, entry_price, exit_price,
	quantity, pnl, status, created_at, closed_at`

func scanTrade(row pgx.Row) (*Trade, error) {
	trade := &Trade{}
	err := row.Scan(
		&trade.ID, &trade.TraderID, &trade.Symbol, &trade.Direction,
		&trade.EntryPrice, &trade.ExitPrice, &trade.Quantity, &trade.Pnl,
		&trade.Status, &trade.CreatedAt, &trade.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// GetTrade retrieves a trade by ID. Returns (nil, nil) when not found.
func (r *Repository) GetTrade(ctx context.Context, id string) (*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`

	trade, err := scanTrade(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}

	return trade, nil
}

// ListTrades retrieves all trades, or a single trader's when traderID is set.
func (r *Repository) ListTrades(ctx context.Context, traderID string) ([]*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY created_at`
	args := []interface{}{}
	if traderID != "" {
		query = `SELECT ` + tradeColumns + ` FROM trades WHERE trader_id = $1 ORDER BY created_at`
		args = append(args, traderID)
	}

	return r.listTrades(ctx, query, args...)
}

// ListOpenTrades retrieves all trades with status OPEN.
func (r *Repository) ListOpenTrades(ctx context.Context) ([]*Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = 'OPEN' ORDER BY created_at`
	return r.listTrades(ctx, query)
}

func (r *Repository) listTrades(ctx context.Context, query string, args ...interface{}) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// CloseTradeOnce performs the atomic OPEN->CLOSED transition. The conditional
// UPDATE is the linearization point: of N concurrent close attempts exactly
// one matches status='OPEN', the rest see ErrAlreadyClosed. The trader's
// balance is credited in the same transaction, so a trade is never CLOSED
// without its pnl applied.
func (r *Repository) CloseTradeOnce(ctx context.Context, tradeID string, exitPrice, pnl float64, closedAt time.Time) (*Trade, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin close transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE trades
		SET exit_price = $2, pnl = $3, status = 'CLOSED', closed_at = $4
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + tradeColumns

	trade, err := scanTrade(tx.QueryRow(ctx, query, tradeID, exitPrice, pnl, closedAt))
	if err == pgx.ErrNoRows {
		// Lost the race or unknown id; look once more to tell which.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trades WHERE id = $1)`, tradeID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check trade existence: %w", err)
		}
		if !exists {
			return nil, ErrTradeNotFound
		}
		return nil, ErrAlreadyClosed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close trade: %w", err)
	}

	if err := applyTradePnL(ctx, tx, trade.TraderID, pnl); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("trader %s: %w", trade.TraderID, ErrUserNotFound)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit trade close: %w", err)
	}

	return trade, nil
}
