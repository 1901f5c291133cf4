package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"copytrade-backend/config"
	"copytrade-backend/internal/api"
	"copytrade-backend/internal/database"
	"copytrade-backend/internal/events"
	"copytrade-backend/internal/graph"
	"copytrade-backend/internal/lifecycle"
	"copytrade-backend/internal/logging"
	"copytrade-backend/internal/registry"
	"copytrade-backend/internal/replication"
	"copytrade-backend/internal/vault"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	ctx := context.Background()

	// Pick the persistence backend
	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer cleanup()

	// Seed demo data on an empty store
	if cfg.TradingConfig.SeedSampleData {
		if err := database.SeedSampleData(ctx, store); err != nil {
			logger.Warn("Failed to seed sample data", "error", err)
		}
	}

	// Settlement failure tracker (Redis-backed when available)
	tracker := database.NewSettlementTracker(newRedisClient(ctx, cfg, logger))

	// Replication engine and trade lifecycle
	engine := replication.NewEngine(store, tracker, eventBus, cfg.ReplicationConfig.FanoutWorkers)
	controller := lifecycle.NewController(store, engine, eventBus)
	registrySvc := registry.NewService(store, eventBus)

	// Settlement reconciler (repair path for missed settlements)
	reconciler := replication.NewReconciler(engine, store, &replication.ReconcilerConfig{
		Interval:    cfg.ReplicationConfig.ReconcileInterval,
		ScanTimeout: cfg.ReplicationConfig.ReconcileTimeout,
	})
	if err := reconciler.Start(); err != nil {
		log.Fatalf("Failed to start reconciler: %v", err)
	}
	defer reconciler.Stop()

	// GraphQL schema
	schema, err := graph.NewSchema(&graph.Resolver{
		Store:           store,
		Registry:        registrySvc,
		Lifecycle:       controller,
		EventBus:        eventBus,
		StartingBalance: cfg.TradingConfig.StartingBalance,
	})
	if err != nil {
		log.Fatalf("Failed to build GraphQL schema: %v", err)
	}

	// HTTP server
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
	}, schema, eventBus)

	// Run until interrupted
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Copy-trading engine starting",
		"backend", cfg.StoreConfig.Backend,
		"port", cfg.ServerConfig.Port,
	)

	if err := server.Start(runCtx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	logger.Info("Shutdown complete")
}

// buildStore constructs the configured store backend. For postgres the
// database credentials can come from Vault; otherwise the static config is
// used as-is.
func buildStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (database.Store, func(), error) {
	if strings.EqualFold(cfg.StoreConfig.Backend, "memory") {
		logger.Info("Using in-memory store")
		return database.NewMemoryStore(), func() {}, nil
	}

	dbConfig := database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return nil, nil, err
	}
	if vaultClient.IsEnabled() {
		creds, err := vaultClient.DatabaseCredentials(ctx)
		if err != nil {
			return nil, nil, err
		}
		if creds != nil {
			dbConfig.User = creds.Username
			dbConfig.Password = creds.Password
			logger.Info("Database credentials sourced from Vault")
		}
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		return nil, nil, err
	}

	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger.Info("Connected to PostgreSQL",
		"host", dbConfig.Host,
		"database", dbConfig.Database,
	)

	return database.NewRepository(db), db.Close, nil
}

// newRedisClient connects to Redis when enabled. Returns nil on failure or
// when disabled; the settlement tracker degrades to in-process tracking.
func newRedisClient(ctx context.Context, cfg *config.Config, logger *logging.Logger) *redis.Client {
	if !cfg.RedisConfig.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisConfig.Address,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
		PoolSize: cfg.RedisConfig.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, settlement tracking falls back to memory",
			"address", cfg.RedisConfig.Address,
			"error", err,
		)
		client.Close()
		return nil
	}

	logger.Info("Connected to Redis", "address", cfg.RedisConfig.Address)
	return client
}
