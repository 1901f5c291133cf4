package database

import (
	"time"
)

// TradeDirection is the side of a trade.
type TradeDirection string

const (
	DirectionLong  TradeDirection = "LONG"
	DirectionShort TradeDirection = "SHORT"
)

// TradeStatus is the lifecycle state of a trade or copied trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// User represents a platform account. Traders (IsTrader=true) own trades that
// followers may copy. Balance is only ever mutated through settlement
// primitives on the store, never written directly from a request handler.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Balance        float64   `json:"balance"`
	TotalPnl       float64   `json:"total_pnl"`
	WinCount       int       `json:"win_count"`
	TradeCount     int       `json:"trade_count"`
	FollowersCount int       `json:"followers_count"`
	IsTrader       bool      `json:"is_trader"`
	CreatedAt      time.Time `json:"created_at"`
}

// WinRate returns the fraction of settled trades that were profitable.
func (u *User) WinRate() float64 {
	if u.TradeCount == 0 {
		return 0
	}
	return float64(u.WinCount) / float64(u.TradeCount)
}

// Trade is an original position owned by a trader.
// ExitPrice, Pnl and ClosedAt are nil exactly while Status is OPEN; the
// OPEN->CLOSED transition sets all three atomically and happens at most once.
type Trade struct {
	ID         string         `json:"id"`
	TraderID   string         `json:"trader_id"`
	Symbol     string         `json:"symbol"`
	Direction  TradeDirection `json:"direction"`
	EntryPrice float64        `json:"entry_price"`
	ExitPrice  *float64       `json:"exit_price,omitempty"`
	Quantity   float64        `json:"quantity"`
	Pnl        *float64       `json:"pnl,omitempty"`
	Status     TradeStatus    `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ClosedAt   *time.Time     `json:"closed_at,omitempty"`
}

// CopyRelation is a follower's subscription to a trader. CopyRatio scales the
// trader's quantity onto the follower's copied positions. Deactivating a
// relation stops new copies; it never touches copies already open.
type CopyRelation struct {
	ID         string    `json:"id"`
	FollowerID string    `json:"follower_id"`
	TraderID   string    `json:"trader_id"`
	CopyRatio  float64   `json:"copy_ratio"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// CopiedTrade mirrors an original trade for one follower. Quantity is fixed at
// creation time (original quantity x ratio) and never re-scaled. RelationID
// together with OriginalTradeID is the idempotency key: fan-out may be retried
// and must not double-create a copy for the same (trade, relation) pair.
type CopiedTrade struct {
	ID              string      `json:"id"`
	OriginalTradeID string      `json:"original_trade_id"`
	RelationID      string      `json:"relation_id"`
	FollowerID      string      `json:"follower_id"`
	Quantity        float64     `json:"quantity"`
	Pnl             *float64    `json:"pnl,omitempty"`
	Status          TradeStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

// UnsettledCopy is a copied trade still OPEN after its originating trade
// closed, joined with the trade fields needed to settle it. The reconciler
// scans for these and finishes the settlement.
type UnsettledCopy struct {
	Copy       CopiedTrade
	Direction  TradeDirection
	EntryPrice float64
	ExitPrice  float64
}

// SettlementFailure records a follower settlement that could not be applied
// during fan-out. Failures are retried by the reconciler; the record exists so
// operators can see what is pending and why.
type SettlementFailure struct {
	CopiedTradeID   string    `json:"copied_trade_id"`
	OriginalTradeID string    `json:"original_trade_id"`
	FollowerID      string    `json:"follower_id"`
	Reason          string    `json:"reason"`
	Attempts        int       `json:"attempts"`
	FailedAt        time.Time `json:"failed_at"`
}
