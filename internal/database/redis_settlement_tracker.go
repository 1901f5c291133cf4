// Redis-backed tracking of failed follower settlements. A failure recorded
// here is pending work for the reconciler; clearing it means the copy was
// finally settled. When Redis is not configured the tracker degrades to an
// in-process map so mock mode keeps full behavior.

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// SettlementFailureKeyPrefix is the prefix for failure records.
	// Format: copytrade:settlement_failure:{copiedTradeID}
	SettlementFailureKeyPrefix = "copytrade:settlement_failure"

	// SettlementFailureListKey is the set of all outstanding failure keys.
	SettlementFailureListKey = "copytrade:settlement_failures:list"

	// SettlementFailureTTL bounds how long a record lives if never cleared.
	SettlementFailureTTL = 7 * 24 * time.Hour
)

// SettlementTracker records per-follower settlement failures.
type SettlementTracker struct {
	client *redis.Client
	logger zerolog.Logger

	mu    sync.RWMutex
	local map[string]SettlementFailure // fallback when client == nil
}

// NewSettlementTracker creates a tracker. client may be nil, in which case
// records are kept in process memory only.
func NewSettlementTracker(client *redis.Client) *SettlementTracker {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", "settlement-tracker").
		Logger()

	return &SettlementTracker{
		client: client,
		logger: logger,
		local:  make(map[string]SettlementFailure),
	}
}

// RecordFailure stores (or refreshes) a failure record for a copied trade.
func (t *SettlementTracker) RecordFailure(ctx context.Context, failure SettlementFailure) error {
	if failure.FailedAt.IsZero() {
		failure.FailedAt = time.Now()
	}

	if prev, ok := t.getFailure(ctx, failure.CopiedTradeID); ok {
		failure.Attempts = prev.Attempts + 1
	} else if failure.Attempts == 0 {
		failure.Attempts = 1
	}

	t.logger.Warn().
		Str("copied_trade_id", failure.CopiedTradeID).
		Str("follower_id", failure.FollowerID).
		Str("reason", failure.Reason).
		Int("attempts", failure.Attempts).
		Msg("follower settlement failed, queued for retry")

	if t.client == nil {
		t.mu.Lock()
		t.local[failure.CopiedTradeID] = failure
		t.mu.Unlock()
		return nil
	}

	data, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement failure: %w", err)
	}

	key := failureKey(failure.CopiedTradeID)
	pipe := t.client.Pipeline()
	pipe.Set(ctx, key, data, SettlementFailureTTL)
	pipe.SAdd(ctx, SettlementFailureListKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record settlement failure: %w", err)
	}

	return nil
}

// ClearFailure removes the record once the copy was settled.
func (t *SettlementTracker) ClearFailure(ctx context.Context, copiedTradeID string) error {
	if t.client == nil {
		t.mu.Lock()
		delete(t.local, copiedTradeID)
		t.mu.Unlock()
		return nil
	}

	key := failureKey(copiedTradeID)
	pipe := t.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, SettlementFailureListKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear settlement failure: %w", err)
	}

	return nil
}

// ListFailures returns all outstanding failure records.
func (t *SettlementTracker) ListFailures(ctx context.Context) ([]SettlementFailure, error) {
	if t.client == nil {
		t.mu.RLock()
		defer t.mu.RUnlock()
		failures := make([]SettlementFailure, 0, len(t.local))
		for _, f := range t.local {
			failures = append(failures, f)
		}
		return failures, nil
	}

	keys, err := t.client.SMembers(ctx, SettlementFailureListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement failures: %w", err)
	}

	var failures []SettlementFailure
	for _, key := range keys {
		data, err := t.client.Get(ctx, key).Result()
		if err == redis.Nil {
			// Expired record; drop the dangling set member.
			t.client.SRem(ctx, SettlementFailureListKey, key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read settlement failure %s: %w", key, err)
		}

		var failure SettlementFailure
		if err := json.Unmarshal([]byte(data), &failure); err != nil {
			t.logger.Error().Str("key", key).Err(err).Msg("corrupt settlement failure record")
			continue
		}
		failures = append(failures, failure)
	}

	return failures, nil
}

func (t *SettlementTracker) getFailure(ctx context.Context, copiedTradeID string) (SettlementFailure, bool) {
	if t.client == nil {
		t.mu.RLock()
		defer t.mu.RUnlock()
		f, ok := t.local[copiedTradeID]
		return f, ok
	}

	data, err := t.client.Get(ctx, failureKey(copiedTradeID)).Result()
	if err != nil {
		return SettlementFailure{}, false
	}
	var failure SettlementFailure
	if err := json.Unmarshal([]byte(data), &failure); err != nil {
		return SettlementFailure{}, false
	}
	return failure, true
}

func failureKey(copiedTradeID string) string {
	return fmt.Sprintf("%s:%s", SettlementFailureKeyPrefix, copiedTradeID)
}
