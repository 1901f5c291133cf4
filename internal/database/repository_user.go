package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// USER OPERATIONS
// =====================================================

// CreateUser inserts a new user row.
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (
			id, username, balance, total_pnl, win_count, trade_count,
			followers_count, is_trader, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Balance,
		user.TotalPnl,
		user.WinCount,
		user.TradeCount,
		user.FollowersCount,
		user.IsTrader,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

const userColumns = `id, username, balance, total_pnl, win_count, trade_count,
	followers_count, is_trader, created_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Balance, &user.TotalPnl,
		&user.WinCount, &user.TradeCount, &user.FollowersCount,
		&user.IsTrader, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID. Returns (nil, nil) when not found.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// ListUsers retrieves all users.
func (r *Repository) ListUsers(ctx context.Context) ([]*User, error) {
	return r.listUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
}

// ListTraders retrieves all trader-flagged users.
func (r *Repository) ListTraders(ctx context.Context) ([]*User, error) {
	return r.listUsers(ctx, `SELECT `+userColumns+` FROM users WHERE is_trader = TRUE ORDER BY created_at`)
}

func (r *Repository) listUsers(ctx context.Context, query string) ([]*User, error) {
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// AdjustFollowers shifts a trader's follower count by delta, floored at zero.
func (r *Repository) AdjustFollowers(ctx context.Context, traderID string, delta int) error {
	query := `
		UPDATE users
		SET followers_count = GREATEST(followers_count + $2, 0)
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, traderID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust follower count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// applyTradePnL credits/debits the user's balance by pnl and updates the
// cumulative PnL and win/trade counters in a single statement. Runs inside
// the caller's transaction so it commits together with the status transition
// that produced the pnl.
func applyTradePnL(ctx context.Context, tx pgx.Tx, userID string, pnl float64) error {
	query := `
		UPDATE users
		SET balance = balance + $2,
			total_pnl = total_pnl + $2,
			trade_count = trade_count + 1,
			win_count = win_count + CASE WHEN $2 > 0 THEN 1 ELSE 0 END
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, userID, pnl)
	if err != nil {
		return fmt.Errorf("failed to apply pnl to user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
