package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func seedTrader(t *testing.T, store *MemoryStore, id string, balance float64) {
	t.Helper()
	err := store.CreateUser(context.Background(), &User{
		ID:        id,
		Username:  "trader-" + id,
		Balance:   balance,
		IsTrader:  true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
}

func seedOpenTrade(t *testing.T, store *MemoryStore, id, traderID string, entryPrice, quantity float64) {
	t.Helper()
	err := store.CreateTrade(context.Background(), &Trade{
		ID:         id,
		TraderID:   traderID,
		Symbol:     "BTC/USD",
		Direction:  DirectionLong,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Status:     StatusOpen,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to create trade: %v", err)
	}
}

// ============================================================================
// TEST: Close transition happens exactly once under concurrency
// ============================================================================

func TestCloseTradeOnce_SingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedTrader(t, store, "trader-1", 1000)
	seedOpenTrade(t, store, "trade-1", "trader-1", 100, 10)

	const closers = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	alreadyClosed := 0

	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CloseTradeOnce(ctx, "trade-1", 110, 100, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrAlreadyClosed):
				alreadyClosed++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
	if alreadyClosed != closers-1 {
		t.Errorf("Expected %d ErrAlreadyClosed, got %d", closers-1, alreadyClosed)
	}

	// Trader credited exactly once
	trader, err := store.GetUser(ctx, "trader-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !floatEquals(trader.Balance, 1100, 1e-9) {
		t.Errorf("Expected balance 1100, got %.2f", trader.Balance)
	}
	if trader.TradeCount != 1 || trader.WinCount != 1 {
		t.Errorf("Expected 1 trade / 1 win, got %d / %d", trader.TradeCount, trader.WinCount)
	}

	trade, err := store.GetTrade(ctx, "trade-1")
	if err != nil {
		t.Fatalf("GetTrade failed: %v", err)
	}
	if trade.Status != StatusClosed {
		t.Errorf("Expected status CLOSED, got %s", trade.Status)
	}
	if trade.ExitPrice == nil || trade.Pnl == nil || trade.ClosedAt == nil {
		t.Error("Expected exit price, pnl and closed_at to all be set")
	}
}

func TestCloseTradeOnce_NotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CloseTradeOnce(context.Background(), "missing", 100, 0, time.Now())
	if !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("Expected ErrTradeNotFound, got %v", err)
	}
}

// ============================================================================
// TEST: Copied trade creation is idempotent per (trade, relation)
// ============================================================================

func TestCreateCopiedTrade_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &CopiedTrade{
		ID:              "copy-1",
		OriginalTradeID: "trade-1",
		RelationID:      "rel-1",
		FollowerID:      "follower-1",
		Quantity:        5,
		Status:          StatusOpen,
		CreatedAt:       time.Now(),
	}

	created, err := store.CreateCopiedTrade(ctx, first)
	if err != nil || !created {
		t.Fatalf("Expected first create to succeed, created=%v err=%v", created, err)
	}

	// Same (trade, relation) pair, different row id: must be a no-op
	dup := *first
	dup.ID = "copy-2"
	created, err = store.CreateCopiedTrade(ctx, &dup)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if created {
		t.Error("Expected duplicate create to be suppressed")
	}

	copies, err := store.ListCopiedTradesByFollower(ctx, "follower-1")
	if err != nil {
		t.Fatalf("ListCopiedTradesByFollower failed: %v", err)
	}
	if len(copies) != 1 {
		t.Errorf("Expected 1 copy, got %d", len(copies))
	}

	// Different relation for the same trade is a distinct copy
	other := *first
	other.ID = "copy-3"
	other.RelationID = "rel-2"
	created, err = store.CreateCopiedTrade(ctx, &other)
	if err != nil || !created {
		t.Errorf("Expected distinct relation to create, created=%v err=%v", created, err)
	}
}

func TestCreateCopiedTrade_ConcurrentDuplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const attempts = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0

	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.CreateCopiedTrade(ctx, &CopiedTrade{
				ID:              fmt.Sprintf("copy-%d", i),
				OriginalTradeID: "trade-1",
				RelationID:      "rel-1",
				FollowerID:      "follower-1",
				Quantity:        5,
				Status:          StatusOpen,
				CreatedAt:       time.Now(),
			})
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Errorf("Expected exactly 1 creation, got %d", createdCount)
	}
}

// ============================================================================
// TEST: Settlement atomicity
// ============================================================================

func TestSettleCopiedTrade_CreditsFollowerOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.CreateUser(ctx, &User{ID: "follower-1", Username: "f", Balance: 500, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := store.CreateCopiedTrade(ctx, &CopiedTrade{
		ID:              "copy-1",
		OriginalTradeID: "trade-1",
		RelationID:      "rel-1",
		FollowerID:      "follower-1",
		Quantity:        5,
		Status:          StatusOpen,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("CreateCopiedTrade failed: %v", err)
	}

	settled, err := store.SettleCopiedTrade(ctx, "copy-1", 50)
	if err != nil {
		t.Fatalf("SettleCopiedTrade failed: %v", err)
	}
	if settled.Status != StatusClosed || settled.Pnl == nil || *settled.Pnl != 50 {
		t.Errorf("Expected closed copy with pnl 50, got %+v", settled)
	}

	// Second settle must not double-credit
	_, err = store.SettleCopiedTrade(ctx, "copy-1", 50)
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Expected ErrAlreadyClosed, got %v", err)
	}

	follower, err := store.GetUser(ctx, "follower-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !floatEquals(follower.Balance, 550, 1e-9) {
		t.Errorf("Expected balance 550, got %.2f", follower.Balance)
	}
	if follower.TradeCount != 1 || follower.WinCount != 1 {
		t.Errorf("Expected 1 trade / 1 win, got %d / %d", follower.TradeCount, follower.WinCount)
	}
}

func TestSettleCopiedTrade_MissingFollowerLeavesCopyOpen(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.CreateCopiedTrade(ctx, &CopiedTrade{
		ID:              "copy-1",
		OriginalTradeID: "trade-1",
		RelationID:      "rel-1",
		FollowerID:      "ghost",
		Quantity:        5,
		Status:          StatusOpen,
		CreatedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("CreateCopiedTrade failed: %v", err)
	}

	if _, err := store.SettleCopiedTrade(ctx, "copy-1", 50); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}

	// Copy must stay open so the repair pass can retry it
	copies, err := store.ListOpenCopiesByTrade(ctx, "trade-1")
	if err != nil {
		t.Fatalf("ListOpenCopiesByTrade failed: %v", err)
	}
	if len(copies) != 1 {
		t.Errorf("Expected copy to remain open, got %d open copies", len(copies))
	}
}

// ============================================================================
// TEST: Unsettled copy scan
// ============================================================================

func TestListUnsettledCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedTrader(t, store, "trader-1", 1000)
	seedOpenTrade(t, store, "trade-open", "trader-1", 100, 10)
	seedOpenTrade(t, store, "trade-closed", "trader-1", 100, 10)

	if _, err := store.CloseTradeOnce(ctx, "trade-closed", 110, 100, time.Now()); err != nil {
		t.Fatalf("CloseTradeOnce failed: %v", err)
	}

	mk := func(id, tradeID string) *CopiedTrade {
		return &CopiedTrade{
			ID:              id,
			OriginalTradeID: tradeID,
			RelationID:      "rel-" + id,
			FollowerID:      "follower-1",
			Quantity:        5,
			Status:          StatusOpen,
			CreatedAt:       time.Now(),
		}
	}

	// Open copy of an open trade: not unsettled
	if _, err := store.CreateCopiedTrade(ctx, mk("copy-a", "trade-open")); err != nil {
		t.Fatal(err)
	}
	// Open copy of a closed trade: unsettled
	if _, err := store.CreateCopiedTrade(ctx, mk("copy-b", "trade-closed")); err != nil {
		t.Fatal(err)
	}

	unsettled, err := store.ListUnsettledCopies(ctx)
	if err != nil {
		t.Fatalf("ListUnsettledCopies failed: %v", err)
	}
	if len(unsettled) != 1 {
		t.Fatalf("Expected 1 unsettled copy, got %d", len(unsettled))
	}
	u := unsettled[0]
	if u.Copy.ID != "copy-b" {
		t.Errorf("Expected copy-b, got %s", u.Copy.ID)
	}
	if u.EntryPrice != 100 || u.ExitPrice != 110 || u.Direction != DirectionLong {
		t.Errorf("Unexpected join fields: %+v", u)
	}
}

// ============================================================================
// TEST: Relation deactivation and follower counts
// ============================================================================

func TestDeactivateRelation_TransitionOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.CreateRelation(ctx, &CopyRelation{
		ID:         "rel-1",
		FollowerID: "follower-1",
		TraderID:   "trader-1",
		CopyRatio:  0.5,
		Active:     true,
		CreatedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("CreateRelation failed: %v", err)
	}

	rel, transitioned, err := store.DeactivateRelation(ctx, "rel-1")
	if err != nil {
		t.Fatalf("DeactivateRelation failed: %v", err)
	}
	if !transitioned || rel.Active {
		t.Errorf("Expected first call to transition, transitioned=%v active=%v", transitioned, rel.Active)
	}

	// Second call is a no-op success
	rel, transitioned, err = store.DeactivateRelation(ctx, "rel-1")
	if err != nil {
		t.Fatalf("Second DeactivateRelation failed: %v", err)
	}
	if transitioned {
		t.Error("Expected second call not to transition")
	}
	if rel.Active {
		t.Error("Expected relation to stay inactive")
	}

	if _, _, err := store.DeactivateRelation(ctx, "missing"); !errors.Is(err, ErrRelationNotFound) {
		t.Errorf("Expected ErrRelationNotFound, got %v", err)
	}
}

func TestAdjustFollowers_FloorsAtZero(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedTrader(t, store, "trader-1", 0)

	if err := store.AdjustFollowers(ctx, "trader-1", -5); err != nil {
		t.Fatalf("AdjustFollowers failed: %v", err)
	}
	trader, _ := store.GetUser(ctx, "trader-1")
	if trader.FollowersCount != 0 {
		t.Errorf("Expected followers count floored at 0, got %d", trader.FollowersCount)
	}

	if err := store.AdjustFollowers(ctx, "missing", 1); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

// ============================================================================
// TEST: Listing filters
// ============================================================================

func TestRelationListings_ActiveOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	mk := func(id string, active bool, offset time.Duration) *CopyRelation {
		return &CopyRelation{
			ID:         id,
			FollowerID: "follower-1",
			TraderID:   "trader-1",
			CopyRatio:  1,
			Active:     active,
			CreatedAt:  base.Add(offset),
		}
	}
	for _, rel := range []*CopyRelation{
		mk("rel-1", true, 0),
		mk("rel-2", false, time.Second),
		mk("rel-3", true, 2*time.Second),
	} {
		if err := store.CreateRelation(ctx, rel); err != nil {
			t.Fatal(err)
		}
	}

	active, err := store.ActiveRelationsFor(ctx, "trader-1")
	if err != nil {
		t.Fatalf("ActiveRelationsFor failed: %v", err)
	}
	if len(active) != 2 || active[0].ID != "rel-1" || active[1].ID != "rel-3" {
		t.Errorf("Expected [rel-1 rel-3], got %d relations", len(active))
	}

	byFollower, err := store.ListRelationsByFollower(ctx, "follower-1")
	if err != nil {
		t.Fatalf("ListRelationsByFollower failed: %v", err)
	}
	if len(byFollower) != 2 {
		t.Errorf("Expected inactive relation filtered out, got %d", len(byFollower))
	}
}

func TestTradeListings(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedTrader(t, store, "trader-1", 0)
	seedTrader(t, store, "trader-2", 0)
	seedOpenTrade(t, store, "trade-1", "trader-1", 100, 1)
	seedOpenTrade(t, store, "trade-2", "trader-2", 100, 1)

	if _, err := store.CloseTradeOnce(ctx, "trade-2", 110, 10, time.Now()); err != nil {
		t.Fatalf("CloseTradeOnce failed: %v", err)
	}

	all, err := store.ListTrades(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("Expected 2 trades, got %d (err=%v)", len(all), err)
	}

	byTrader, err := store.ListTrades(ctx, "trader-1")
	if err != nil || len(byTrader) != 1 || byTrader[0].ID != "trade-1" {
		t.Fatalf("Expected only trader-1's trade, got %d (err=%v)", len(byTrader), err)
	}

	open, err := store.ListOpenTrades(ctx)
	if err != nil || len(open) != 1 || open[0].ID != "trade-1" {
		t.Fatalf("Expected only the open trade, got %d (err=%v)", len(open), err)
	}
}

// ============================================================================
// TEST: Reads return copies, not aliases
// ============================================================================

func TestReadsDoNotAliasInternalState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedTrader(t, store, "trader-1", 100)

	u1, _ := store.GetUser(ctx, "trader-1")
	u1.Balance = 999999

	u2, _ := store.GetUser(ctx, "trader-1")
	if u2.Balance != 100 {
		t.Errorf("Mutating a returned user leaked into the store: balance %.2f", u2.Balance)
	}
}
