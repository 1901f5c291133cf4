package database

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation used in mock mode and in
// tests. A single mutex makes every operation atomic, which gives the same
// guarantees the Postgres repository gets from conditional updates and
// transactions: close transitions happen exactly once and a follower's
// settlement applies the copy close and the balance credit together.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*User
	trades       map[string]*Trade
	relations    map[string]*CopyRelation
	copiedTrades map[string]*CopiedTrade
	// copyKeys indexes copied trades by (original trade, relation) so retried
	// fan-out cannot double-create.
	copyKeys map[copyKey]string
}

type copyKey struct {
	tradeID    string
	relationID string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*User),
		trades:       make(map[string]*Trade),
		relations:    make(map[string]*CopyRelation),
		copiedTrades: make(map[string]*CopiedTrade),
		copyKeys:     make(map[copyKey]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func cloneUser(u *User) *User {
	c := *u
	return &c
}

func cloneTrade(t *Trade) *Trade {
	c := *t
	if t.ExitPrice != nil {
		v := *t.ExitPrice
		c.ExitPrice = &v
	}
	if t.Pnl != nil {
		v := *t.Pnl
		c.Pnl = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		c.ClosedAt = &v
	}
	return &c
}

func cloneRelation(r *CopyRelation) *CopyRelation {
	c := *r
	return &c
}

func cloneCopiedTrade(ct *CopiedTrade) *CopiedTrade {
	c := *ct
	if ct.Pnl != nil {
		v := *ct.Pnl
		c.Pnl = &v
	}
	return &c
}

// =====================================================
// USERS
// =====================================================

func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	sortUsers(users)
	return users, nil
}

func (s *MemoryStore) ListTraders(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var traders []*User
	for _, u := range s.users {
		if u.IsTrader {
			traders = append(traders, cloneUser(u))
		}
	}
	sortUsers(traders)
	return traders, nil
}

func sortUsers(users []*User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}

func (s *MemoryStore) AdjustFollowers(ctx context.Context, traderID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[traderID]
	if !ok {
		return ErrUserNotFound
	}
	user.FollowersCount += delta
	if user.FollowersCount < 0 {
		user.FollowersCount = 0
	}
	return nil
}

// applyPnLLocked mutates the user's balance and counters; callers hold the
// write lock so the update lands together with the transition that earned it.
func (s *MemoryStore) applyPnLLocked(userID string, pnl float64) error {
	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Balance += pnl
	user.TotalPnl += pnl
	user.TradeCount++
	if pnl > 0 {
		user.WinCount++
	}
	return nil
}

// =====================================================
// TRADES
// =====================================================

func (s *MemoryStore) CreateTrade(ctx context.Context, trade *Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[trade.ID] = cloneTrade(trade)
	return nil
}

func (s *MemoryStore) GetTrade(ctx context.Context, id string) (*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trade, ok := s.trades[id]
	if !ok {
		return nil, nil
	}
	return cloneTrade(trade), nil
}

func (s *MemoryStore) ListTrades(ctx context.Context, traderID string) ([]*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var trades []*Trade
	for _, t := range s.trades {
		if traderID == "" || t.TraderID == traderID {
			trades = append(trades, cloneTrade(t))
		}
	}
	sortTrades(trades)
	return trades, nil
}

func (s *MemoryStore) ListOpenTrades(ctx context.Context) ([]*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var trades []*Trade
	for _, t := range s.trades {
		if t.Status == StatusOpen {
			trades = append(trades, cloneTrade(t))
		}
	}
	sortTrades(trades)
	return trades, nil
}

func sortTrades(trades []*Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
}

func (s *MemoryStore) CloseTradeOnce(ctx context.Context, tradeID string, exitPrice, pnl float64, closedAt time.Time) (*Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, ok := s.trades[tradeID]
	if !ok {
		return nil, ErrTradeNotFound
	}
	if trade.Status != StatusOpen {
		return nil, ErrAlreadyClosed
	}
	if err := s.applyPnLLocked(trade.TraderID, pnl); err != nil {
		return nil, err
	}

	exit := exitPrice
	p := pnl
	at := closedAt
	trade.ExitPrice = &exit
	trade.Pnl = &p
	trade.ClosedAt = &at
	trade.Status = StatusClosed

	return cloneTrade(trade), nil
}

// =====================================================
// COPY RELATIONS
// =====================================================

func (s *MemoryStore) CreateRelation(ctx context.Context, relation *CopyRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations[relation.ID] = cloneRelation(relation)
	return nil
}

func (s *MemoryStore) GetRelation(ctx context.Context, id string) (*CopyRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	relation, ok := s.relations[id]
	if !ok {
		return nil, nil
	}
	return cloneRelation(relation), nil
}

func (s *MemoryStore) DeactivateRelation(ctx context.Context, id string) (*CopyRelation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	relation, ok := s.relations[id]
	if !ok {
		return nil, false, ErrRelationNotFound
	}
	transitioned := relation.Active
	relation.Active = false
	return cloneRelation(relation), transitioned, nil
}

func (s *MemoryStore) ActiveRelationsFor(ctx context.Context, traderID string) ([]*CopyRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var relations []*CopyRelation
	for _, r := range s.relations {
		if r.TraderID == traderID && r.Active {
			relations = append(relations, cloneRelation(r))
		}
	}
	sortRelations(relations)
	return relations, nil
}

func (s *MemoryStore) ListRelationsByFollower(ctx context.Context, followerID string) ([]*CopyRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var relations []*CopyRelation
	for _, r := range s.relations {
		if r.FollowerID == followerID && r.Active {
			relations = append(relations, cloneRelation(r))
		}
	}
	sortRelations(relations)
	return relations, nil
}

func sortRelations(relations []*CopyRelation) {
	sort.Slice(relations, func(i, j int) bool {
		if relations[i].CreatedAt.Equal(relations[j].CreatedAt) {
			return relations[i].ID < relations[j].ID
		}
		return relations[i].CreatedAt.Before(relations[j].CreatedAt)
	})
}

// =====================================================
// COPIED TRADES
// =====================================================

func (s *MemoryStore) CreateCopiedTrade(ctx context.Context, copy *CopiedTrade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := copyKey{tradeID: copy.OriginalTradeID, relationID: copy.RelationID}
	if _, exists := s.copyKeys[key]; exists {
		return false, nil
	}

	s.copiedTrades[copy.ID] = cloneCopiedTrade(copy)
	s.copyKeys[key] = copy.ID
	return true, nil
}

func (s *MemoryStore) ListCopiedTradesByFollower(ctx context.Context, followerID string) ([]*CopiedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var copies []*CopiedTrade
	for _, ct := range s.copiedTrades {
		if ct.FollowerID == followerID {
			copies = append(copies, cloneCopiedTrade(ct))
		}
	}
	sortCopiedTrades(copies)
	return copies, nil
}

func (s *MemoryStore) ListOpenCopiesByTrade(ctx context.Context, tradeID string) ([]*CopiedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var copies []*CopiedTrade
	for _, ct := range s.copiedTrades {
		if ct.OriginalTradeID == tradeID && ct.Status == StatusOpen {
			copies = append(copies, cloneCopiedTrade(ct))
		}
	}
	sortCopiedTrades(copies)
	return copies, nil
}

func sortCopiedTrades(copies []*CopiedTrade) {
	sort.Slice(copies, func(i, j int) bool {
		if copies[i].CreatedAt.Equal(copies[j].CreatedAt) {
			return copies[i].ID < copies[j].ID
		}
		return copies[i].CreatedAt.Before(copies[j].CreatedAt)
	})
}

func (s *MemoryStore) ListUnsettledCopies(ctx context.Context) ([]*UnsettledCopy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var unsettled []*UnsettledCopy
	for _, ct := range s.copiedTrades {
		if ct.Status != StatusOpen {
			continue
		}
		trade, ok := s.trades[ct.OriginalTradeID]
		if !ok || trade.Status != StatusClosed || trade.ExitPrice == nil {
			continue
		}
		unsettled = append(unsettled, &UnsettledCopy{
			Copy:       *cloneCopiedTrade(ct),
			Direction:  trade.Direction,
			EntryPrice: trade.EntryPrice,
			ExitPrice:  *trade.ExitPrice,
		})
	}
	sort.Slice(unsettled, func(i, j int) bool {
		return unsettled[i].Copy.ID < unsettled[j].Copy.ID
	})
	return unsettled, nil
}

func (s *MemoryStore) SettleCopiedTrade(ctx context.Context, copiedTradeID string, pnl float64) (*CopiedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy, ok := s.copiedTrades[copiedTradeID]
	if !ok {
		return nil, ErrTradeNotFound
	}
	if copy.Status != StatusOpen {
		return nil, ErrAlreadyClosed
	}
	// Balance credit and copy close happen under one lock hold; a missing
	// follower leaves the copy open for the retry pass.
	if err := s.applyPnLLocked(copy.FollowerID, pnl); err != nil {
		return nil, err
	}

	p := pnl
	copy.Pnl = &p
	copy.Status = StatusClosed

	return cloneCopiedTrade(copy), nil
}
