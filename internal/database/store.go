package database

import (
	"context"
	"time"
)

// Store is the single source of truth for users, trades, copy relations and
// copied trades. All mutation in the system goes through it; callers hold ids
// only and re-read current state before acting, never caching entities across
// calls.
//
// The conditional transitions (CloseTradeOnce, SettleCopiedTrade) are the
// linearization points for the OPEN->CLOSED lifecycle: under concurrent
// duplicate attempts exactly one caller succeeds, the rest receive
// ErrAlreadyClosed with no state change.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	ListTraders(ctx context.Context) ([]*User, error)
	// AdjustFollowers shifts a trader's follower count by delta, floored at zero.
	AdjustFollowers(ctx context.Context, traderID string, delta int) error

	// Trades
	CreateTrade(ctx context.Context, trade *Trade) error
	GetTrade(ctx context.Context, id string) (*Trade, error)
	// ListTrades returns all trades, or only the given trader's when traderID
	// is non-empty.
	ListTrades(ctx context.Context, traderID string) ([]*Trade, error)
	ListOpenTrades(ctx context.Context) ([]*Trade, error)
	// CloseTradeOnce performs the atomic OPEN->CLOSED transition: it sets exit
	// price, pnl and closedAt and applies pnl to the trader's balance in a
	// single transaction. Returns ErrTradeNotFound for unknown ids and
	// ErrAlreadyClosed when the trade is no longer open.
	CloseTradeOnce(ctx context.Context, tradeID string, exitPrice, pnl float64, closedAt time.Time) (*Trade, error)

	// Copy relations
	CreateRelation(ctx context.Context, relation *CopyRelation) error
	GetRelation(ctx context.Context, id string) (*CopyRelation, error)
	// DeactivateRelation sets active=false. Deactivating an already-inactive
	// relation is a no-op success with transitioned=false, so follower counts
	// are decremented at most once.
	DeactivateRelation(ctx context.Context, id string) (relation *CopyRelation, transitioned bool, err error)
	// ActiveRelationsFor returns the relations that are active at the moment
	// of the call; the replication engine reads this at fan-out time and the
	// result is never cached.
	ActiveRelationsFor(ctx context.Context, traderID string) ([]*CopyRelation, error)
	ListRelationsByFollower(ctx context.Context, followerID string) ([]*CopyRelation, error)

	// Copied trades
	// CreateCopiedTrade is idempotent on (OriginalTradeID, RelationID): a
	// retried fan-out that hits an existing pair is a no-op success with
	// created=false.
	CreateCopiedTrade(ctx context.Context, copy *CopiedTrade) (created bool, err error)
	ListCopiedTradesByFollower(ctx context.Context, followerID string) ([]*CopiedTrade, error)
	ListOpenCopiesByTrade(ctx context.Context, tradeID string) ([]*CopiedTrade, error)
	// ListUnsettledCopies returns copies still OPEN whose originating trade is
	// CLOSED, joined with the trade fields needed to settle them.
	ListUnsettledCopies(ctx context.Context) ([]*UnsettledCopy, error)
	// SettleCopiedTrade atomically closes the copy and credits the follower's
	// balance by pnl; either both happen or neither. Returns ErrAlreadyClosed
	// when the copy was settled by a concurrent path and ErrUserNotFound when
	// the follower account is missing (the copy stays open for retry).
	SettleCopiedTrade(ctx context.Context, copiedTradeID string, pnl float64) (*CopiedTrade, error)
}
