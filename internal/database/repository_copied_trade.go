package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// COPIED TRADE OPERATIONS
// =====================================================

// CreateCopiedTrade inserts a copied trade. The unique index on
// (original_trade_id, relation_id) makes retried fan-out safe: hitting an
// existing pair is a no-op success with created=false.
func (r *Repository) CreateCopiedTrade(ctx context.Context, copy *CopiedTrade) (bool, error) {
	query := `
		INSERT INTO copied_trades (
			id, original_trade_id, relation_id, follower_id, quantity, pnl, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (original_trade_id, relation_id) DO NOTHING
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		copy.ID,
		copy.OriginalTradeID,
		copy.RelationID,
		copy.FollowerID,
		copy.Quantity,
		copy.Pnl,
		string(copy.Status),
		copy.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create copied trade: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

const copiedTradeColumns = `id, original_trade_id, relation_id, follower_id,
	quantity, pnl, status, created_at`

func scanCopiedTrade(row pgx.Row) (*CopiedTrade, error) {
	copy := &CopiedTrade{}
	err := row.Scan(
		&copy.ID, &copy.OriginalTradeID, &copy.RelationID, &copy.FollowerID,
		&copy.Quantity, &copy.Pnl, &copy.Status, &copy.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return copy, nil
}

// ListCopiedTradesByFollower returns all of a follower's copied trades.
func (r *Repository) ListCopiedTradesByFollower(ctx context.Context, followerID string) ([]*CopiedTrade, error) {
	query := `
		SELECT ` + copiedTradeColumns + `
		FROM copied_trades
		WHERE follower_id = $1
		ORDER BY created_at
	`
	return r.listCopiedTrades(ctx, query, followerID)
}

// ListOpenCopiesByTrade returns the still-open copies of an original trade,
// regardless of whether their relation is still active.
func (r *Repository) ListOpenCopiesByTrade(ctx context.Context, tradeID string) ([]*CopiedTrade, error) {
	query := `
		SELECT ` + copiedTradeColumns + `
		FROM copied_trades
		WHERE original_trade_id = $1 AND status = 'OPEN'
		ORDER BY created_at
	`
	return r.listCopiedTrades(ctx, query, tradeID)
}

func (r *Repository) listCopiedTrades(ctx context.Context, query string, args ...interface{}) ([]*CopiedTrade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list copied trades: %w", err)
	}
	defer rows.Close()

	var copies []*CopiedTrade
	for rows.Next() {
		copy, err := scanCopiedTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan copied trade: %w", err)
		}
		copies = append(copies, copy)
	}

	return copies, rows.Err()
}

// ListUnsettledCopies returns copies still OPEN whose originating trade is
// already CLOSED, joined with the trade fields needed to settle them. Input
// for the reconciler's repair pass.
func (r *Repository) ListUnsettledCopies(ctx context.Context) ([]*UnsettledCopy, error) {
	query := `
		SELECT ct.id, ct.original_trade_id, ct.relation_id, ct.follower_id,
			ct.quantity, ct.pnl, ct.status, ct.created_at,
			t.direction, t.entry_price, t.exit_price
		FROM copied_trades ct
		JOIN trades t ON t.id = ct.original_trade_id
		WHERE ct.status = 'OPEN' AND t.status = 'CLOSED'
		ORDER BY ct.created_at
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled copies: %w", err)
	}
	defer rows.Close()

	var unsettled []*UnsettledCopy
	for rows.Next() {
		u := &UnsettledCopy{}
		err := rows.Scan(
			&u.Copy.ID, &u.Copy.OriginalTradeID, &u.Copy.RelationID,
			&u.Copy.FollowerID, &u.Copy.Quantity, &u.Copy.Pnl,
			&u.Copy.Status, &u.Copy.CreatedAt,
			&u.Direction, &u.EntryPrice, &u.ExitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unsettled copy: %w", err)
		}
		unsettled = append(unsettled, u)
	}

	return unsettled, rows.Err()
}

// SettleCopiedTrade atomically closes the copy and credits the follower's
// balance in one transaction; either both happen or neither. A copy settled
// by a concurrent path yields ErrAlreadyClosed, a missing follower account
// rolls back and yields ErrUserNotFound so the copy stays open for retry.
func (r *Repository) SettleCopiedTrade(ctx context.Context, copiedTradeID string, pnl float64) (*CopiedTrade, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE copied_trades
		SET pnl = $2, status = 'CLOSED'
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + copiedTradeColumns

	copy, err := scanCopiedTrade(tx.QueryRow(ctx, query, copiedTradeID, pnl))
	if err == pgx.ErrNoRows {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM copied_trades WHERE id = $1)`, copiedTradeID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check copied trade existence: %w", err)
		}
		if !exists {
			return nil, ErrTradeNotFound
		}
		return nil, ErrAlreadyClosed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to settle copied trade: %w", err)
	}

	if err := applyTradePnL(ctx, tx, copy.FollowerID, pnl); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("follower %s: %w", copy.FollowerID, ErrUserNotFound)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	return copy, nil
}
