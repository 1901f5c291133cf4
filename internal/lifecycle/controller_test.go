package lifecycle

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"copytrade-backend/internal/database"
	"copytrade-backend/internal/events"
)

// recordingReplicator captures lifecycle notifications.
type recordingReplicator struct {
	mu     sync.Mutex
	opened []*database.Trade
	closed []*database.Trade
}

func (r *recordingReplicator) OnTradeOpened(ctx context.Context, trade *database.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, trade)
}

func (r *recordingReplicator) OnTradeClosed(ctx context.Context, trade *database.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, trade)
}

func newTestController(t *testing.T) (*Controller, *database.MemoryStore, *recordingReplicator) {
	t.Helper()
	store := database.NewMemoryStore()
	replicator := &recordingReplicator{}
	return NewController(store, replicator, events.NewEventBus()), store, replicator
}

func seedTrader(t *testing.T, store *database.MemoryStore, id string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &database.User{
		ID:        id,
		Username:  "trader-" + id,
		Balance:   10000,
		IsTrader:  true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to seed trader: %v", err)
	}
}

// ============================================================================
// TEST: Opening trades
// ============================================================================

func TestOpenTrade(t *testing.T) {
	ctrl, store, replicator := newTestController(t)
	ctx := context.Background()

	seedTrader(t, store, "trader-1")

	trade, err := ctrl.OpenTrade(ctx, "trader-1", "BTC/USD", database.DirectionLong, 42500, 0.5)
	if err != nil {
		t.Fatalf("OpenTrade failed: %v", err)
	}
	if trade.Status != database.StatusOpen {
		t.Errorf("Expected status OPEN, got %s", trade.Status)
	}
	if trade.ExitPrice != nil || trade.Pnl != nil || trade.ClosedAt != nil {
		t.Error("Expected exit price, pnl and closed_at to be unset on an open trade")
	}

	stored, err := store.GetTrade(ctx, trade.ID)
	if err != nil || stored == nil {
		t.Fatalf("Expected trade persisted, err=%v", err)
	}

	replicator.mu.Lock()
	defer replicator.mu.Unlock()
	if len(replicator.opened) != 1 || replicator.opened[0].ID != trade.ID {
		t.Errorf("Expected replicator notified once, got %d", len(replicator.opened))
	}
}

func TestOpenTrade_Validation(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	ctx := context.Background()

	seedTrader(t, store, "trader-1")
	if err := store.CreateUser(ctx, &database.User{ID: "follower-1", Username: "f", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name       string
		traderID   string
		entryPrice float64
		quantity   float64
		wantErr    error
	}{
		{name: "zero quantity", traderID: "trader-1", entryPrice: 100, quantity: 0, wantErr: database.ErrInvalidQuantity},
		{name: "negative quantity", traderID: "trader-1", entryPrice: 100, quantity: -1, wantErr: database.ErrInvalidQuantity},
		{name: "NaN quantity", traderID: "trader-1", entryPrice: 100, quantity: math.NaN(), wantErr: database.ErrInvalidQuantity},
		{name: "zero entry price", traderID: "trader-1", entryPrice: 0, quantity: 1, wantErr: database.ErrInvalidPrice},
		{name: "infinite entry price", traderID: "trader-1", entryPrice: math.Inf(1), quantity: 1, wantErr: database.ErrInvalidPrice},
		{name: "unknown trader", traderID: "ghost", entryPrice: 100, quantity: 1, wantErr: database.ErrInvalidUser},
		{name: "non-trader account", traderID: "follower-1", entryPrice: 100, quantity: 1, wantErr: database.ErrInvalidUser},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ctrl.OpenTrade(ctx, tc.traderID, "BTC/USD", database.DirectionLong, tc.entryPrice, tc.quantity)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	trades, err := store.ListTrades(ctx, "")
	if err != nil {
		t.Fatalf("ListTrades failed: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("Expected no trades after rejected opens, got %d", len(trades))
	}
}

// ============================================================================
// TEST: Closing trades
// ============================================================================

func TestCloseTrade(t *testing.T) {
	ctrl, store, replicator := newTestController(t)
	ctx := context.Background()

	seedTrader(t, store, "trader-1")

	trade, err := ctrl.OpenTrade(ctx, "trader-1", "BTC/USD", database.DirectionLong, 100, 10)
	if err != nil {
		t.Fatalf("OpenTrade failed: %v", err)
	}

	closed, err := ctrl.CloseTrade(ctx, trade.ID, 110)
	if err != nil {
		t.Fatalf("CloseTrade failed: %v", err)
	}
	if closed.Status != database.StatusClosed {
		t.Errorf("Expected status CLOSED, got %s", closed.Status)
	}
	if closed.Pnl == nil || *closed.Pnl != 100 {
		t.Errorf("Expected pnl 100, got %v", closed.Pnl)
	}
	if closed.ExitPrice == nil || *closed.ExitPrice != 110 {
		t.Errorf("Expected exit price 110, got %v", closed.ExitPrice)
	}
	if closed.ClosedAt == nil {
		t.Error("Expected closed_at to be set")
	}

	trader, _ := store.GetUser(ctx, "trader-1")
	if trader.Balance != 10100 {
		t.Errorf("Expected trader balance 10100, got %.2f", trader.Balance)
	}

	replicator.mu.Lock()
	defer replicator.mu.Unlock()
	if len(replicator.closed) != 1 {
		t.Errorf("Expected replicator notified of close once, got %d", len(replicator.closed))
	}
}

func TestCloseTrade_Errors(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	ctx := context.Background()

	seedTrader(t, store, "trader-1")

	if _, err := ctrl.CloseTrade(ctx, "missing", 100); !errors.Is(err, database.ErrTradeNotFound) {
		t.Errorf("Expected ErrTradeNotFound, got %v", err)
	}

	trade, err := ctrl.OpenTrade(ctx, "trader-1", "BTC/USD", database.DirectionLong, 100, 1)
	if err != nil {
		t.Fatalf("OpenTrade failed: %v", err)
	}
	if _, err := ctrl.CloseTrade(ctx, trade.ID, 0); !errors.Is(err, database.ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}
	if _, err := ctrl.CloseTrade(ctx, trade.ID, 110); err != nil {
		t.Fatalf("CloseTrade failed: %v", err)
	}
	if _, err := ctrl.CloseTrade(ctx, trade.ID, 120); !errors.Is(err, database.ErrAlreadyClosed) {
		t.Errorf("Expected ErrAlreadyClosed, got %v", err)
	}
}

func TestCloseTrade_ConcurrentSingleWinner(t *testing.T) {
	ctrl, store, replicator := newTestController(t)
	ctx := context.Background()

	seedTrader(t, store, "trader-1")

	trade, err := ctrl.OpenTrade(ctx, "trader-1", "BTC/USD", database.DirectionLong, 100, 10)
	if err != nil {
		t.Fatalf("OpenTrade failed: %v", err)
	}

	const closers = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctrl.CloseTrade(ctx, trade.ID, 110)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, database.ErrAlreadyClosed) {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 winning close, got %d", winners)
	}

	trader, _ := store.GetUser(ctx, "trader-1")
	if trader.Balance != 10100 {
		t.Errorf("Expected trader credited once (balance 10100), got %.2f", trader.Balance)
	}

	replicator.mu.Lock()
	defer replicator.mu.Unlock()
	if len(replicator.closed) != 1 {
		t.Errorf("Expected exactly 1 close notification, got %d", len(replicator.closed))
	}
}
