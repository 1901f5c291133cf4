package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// SeedSampleData loads a small demo dataset (two traders, one regular user,
// an open and a closed trade) when the store is empty. Gated by the
// trading.seed_sample_data config flag; intended for local development.
func SeedSampleData(ctx context.Context, store Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for existing users: %w", err)
	}
	if len(users) > 0 {
		log.Println("[SEED] Store not empty, skipping sample data")
		return nil
	}

	now := time.Now()

	trader1 := &User{
		ID:             uuid.New().String(),
		Username:       "AlphaTrader",
		Balance:        100000.0,
		TotalPnl:       15420.50,
		WinCount:       72,
		TradeCount:     100,
		FollowersCount: 156,
		IsTrader:       true,
		CreatedAt:      now,
	}
	trader2 := &User{
		ID:             uuid.New().String(),
		Username:       "CryptoKing",
		Balance:        250000.0,
		TotalPnl:       42350.0,
		WinCount:       68,
		TradeCount:     100,
		FollowersCount: 312,
		IsTrader:       true,
		CreatedAt:      now,
	}
	investor := &User{
		ID:         uuid.New().String(),
		Username:   "NewInvestor",
		Balance:    10000.0,
		TotalPnl:   520.0,
		WinCount:   65,
		TradeCount: 100,
		IsTrader:   false,
		CreatedAt:  now,
	}

	for _, u := range []*User{trader1, trader2, investor} {
		if err := store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Username, err)
		}
	}

	openTrade := &Trade{
		ID:         uuid.New().String(),
		TraderID:   trader1.ID,
		Symbol:     "BTC/USD",
		Direction:  DirectionLong,
		EntryPrice: 42500.0,
		Quantity:   0.5,
		Status:     StatusOpen,
		CreatedAt:  now,
	}

	exitPrice := 2380.0
	pnl := 650.0
	closedAt := now
	closedTrade := &Trade{
		ID:         uuid.New().String(),
		TraderID:   trader2.ID,
		Symbol:     "ETH/USD",
		Direction:  DirectionLong,
		EntryPrice: 2250.0,
		ExitPrice:  &exitPrice,
		Quantity:   5.0,
		Pnl:        &pnl,
		Status:     StatusClosed,
		CreatedAt:  now,
		ClosedAt:   &closedAt,
	}

	for _, t := range []*Trade{openTrade, closedTrade} {
		if err := store.CreateTrade(ctx, t); err != nil {
			return fmt.Errorf("failed to seed trade %s: %w", t.Symbol, err)
		}
	}

	log.Printf("[SEED] Sample data loaded: %d users, 2 trades", 3)
	return nil
}
