package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"copytrade-backend/internal/database"
	"copytrade-backend/internal/logging"
	"copytrade-backend/internal/pnl"
)

// ReconcilerConfig holds configuration for the settlement reconciler.
type ReconcilerConfig struct {
	// Interval is how often the repair scan runs.
	Interval time.Duration

	// ScanTimeout bounds a single repair pass.
	ScanTimeout time.Duration
}

// DefaultReconcilerConfig returns default reconciler configuration.
func DefaultReconcilerConfig() *ReconcilerConfig {
	return &ReconcilerConfig{
		Interval:    30 * time.Second,
		ScanTimeout: time.Minute,
	}
}

// Reconciler is the repair path for settlement: it periodically scans for
// copied trades left open after their originating trade closed (a crashed or
// cancelled in-flight close, or a follower whose settlement failed) and
// settles them. Together with the engine's per-copy conditional settle this
// guarantees no copy stays open forever once its origin is closed, and none
// is settled twice.
type Reconciler struct {
	engine *Engine
	store  database.Store
	config *ReconcilerConfig
	logger *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReconciler creates a settlement reconciler.
func NewReconciler(engine *Engine, store database.Store, config *ReconcilerConfig) *Reconciler {
	if config == nil {
		config = DefaultReconcilerConfig()
	}
	return &Reconciler{
		engine:   engine,
		store:    store,
		config:   config,
		logger:   logging.WithComponent("reconciler"),
		stopChan: make(chan struct{}),
	}
}

// Start starts the reconciler loop.
func (r *Reconciler) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler already running")
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info("settlement reconciler starting", "interval", r.config.Interval.String())

	r.wg.Add(1)
	go r.runLoop()

	return nil
}

// Stop stops the reconciler loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()

	r.logger.Info("settlement reconciler stopped")
	return nil
}

// IsRunning returns whether the reconciler loop is active.
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.config.ScanTimeout)
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("repair pass failed", "error", err)
			}
			cancel()
		}
	}
}

// RunOnce performs a single repair pass and returns how many copies it
// settled. Safe to call concurrently with live fan-out: settlement is a
// conditional transition, so a copy settled by both paths lands exactly once.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	unsettled, err := r.store.ListUnsettledCopies(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for unsettled copies: %w", err)
	}
	if len(unsettled) == 0 {
		return 0, nil
	}

	r.logger.Warn("found copies left open after origin close", "count", len(unsettled))

	settledCount := 0
	for _, u := range unsettled {
		copyPnl, err := pnl.Calculate(u.Direction, u.EntryPrice, u.ExitPrice, u.Copy.Quantity)
		if err != nil {
			r.logger.Error("cannot compute pnl for unsettled copy",
				"copied_trade_id", u.Copy.ID,
				"error", err,
			)
			continue
		}

		settled, err := r.store.SettleCopiedTrade(ctx, u.Copy.ID, copyPnl)
		if errors.Is(err, database.ErrAlreadyClosed) {
			continue
		}
		if err != nil {
			r.logger.Error("repair settlement failed",
				"copied_trade_id", u.Copy.ID,
				"follower_id", u.Copy.FollowerID,
				"error", err,
			)
			continue
		}

		settledCount++
		if r.engine.recorder != nil {
			if err := r.engine.recorder.ClearFailure(ctx, settled.ID); err != nil {
				r.logger.Warn("failed to clear settlement failure record", "copied_trade_id", settled.ID, "error", err)
			}
		}
		r.engine.eventBus.PublishCopiedTradeSettled(settled)
	}

	if settledCount > 0 {
		r.logger.Info("repair pass settled stragglers", "settled", settledCount)
	}

	return settledCount, nil
}
