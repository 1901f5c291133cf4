// Package registry manages follower->trader copy subscriptions.
package registry

import (
	"context"
	"fmt"
	"math"
	"time"

	"copytrade-backend/internal/database"
	"copytrade-backend/internal/events"
	"copytrade-backend/internal/logging"

	"github.com/google/uuid"
)

// Service owns the copy relation lifecycle. It never caches relation state;
// every call re-reads through the store.
type Service struct {
	store    database.Store
	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewService creates a copy relation registry service.
func NewService(store database.Store, eventBus *events.EventBus) *Service {
	return &Service{
		store:    store,
		eventBus: eventBus,
		logger:   logging.WithComponent("registry"),
	}
}

// Create validates and creates an active copy relation from follower to
// trader. Validation runs before any write: a rejected request leaves no
// partial state.
func (s *Service) Create(ctx context.Context, followerID, traderID string, ratio float64) (*database.CopyRelation, error) {
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil, database.ErrInvalidRatio
	}
	if followerID == traderID {
		return nil, database.ErrSelfCopy
	}

	follower, err := s.store.GetUser(ctx, followerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up follower: %w", err)
	}
	if follower == nil {
		return nil, database.ErrInvalidUser
	}

	trader, err := s.store.GetUser(ctx, traderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up trader: %w", err)
	}
	if trader == nil || !trader.IsTrader {
		return nil, database.ErrInvalidUser
	}

	relation := &database.CopyRelation{
		ID:         uuid.New().String(),
		FollowerID: followerID,
		TraderID:   traderID,
		CopyRatio:  ratio,
		Active:     true,
		CreatedAt:  time.Now(),
	}

	if err := s.store.CreateRelation(ctx, relation); err != nil {
		return nil, err
	}

	if err := s.store.AdjustFollowers(ctx, traderID, 1); err != nil {
		s.logger.Warn("failed to bump follower count", "trader_id", traderID, "error", err)
	}

	s.logger.Info("copy relation created",
		"relation_id", relation.ID,
		"follower_id", followerID,
		"trader_id", traderID,
		"ratio", ratio,
	)
	s.eventBus.PublishRelationCreated(relation)

	return relation, nil
}

// Deactivate turns a relation off. Already-open copied trades produced by the
// relation are unaffected and will still be settled when their origin closes.
// Deactivating an already-inactive relation is a no-op success.
func (s *Service) Deactivate(ctx context.Context, relationID string) (*database.CopyRelation, error) {
	relation, transitioned, err := s.store.DeactivateRelation(ctx, relationID)
	if err != nil {
		return nil, err
	}

	if transitioned {
		if err := s.store.AdjustFollowers(ctx, relation.TraderID, -1); err != nil {
			s.logger.Warn("failed to drop follower count", "trader_id", relation.TraderID, "error", err)
		}
		s.logger.Info("copy relation deactivated",
			"relation_id", relation.ID,
			"follower_id", relation.FollowerID,
			"trader_id", relation.TraderID,
		)
		s.eventBus.PublishRelationDeactivated(relation)
	}

	return relation, nil
}

// ActiveRelationsFor returns the relations active for the trader at this
// moment; the replication engine calls this at fan-out time.
func (s *Service) ActiveRelationsFor(ctx context.Context, traderID string) ([]*database.CopyRelation, error) {
	return s.store.ActiveRelationsFor(ctx, traderID)
}

// ListForFollower returns the follower's active relations.
func (s *Service) ListForFollower(ctx context.Context, followerID string) ([]*database.CopyRelation, error) {
	return s.store.ListRelationsByFollower(ctx, followerID)
}
