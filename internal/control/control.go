// Package control wires storage, external clients, and workers into the
// reconciler application and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressly/goose/v3"

	"github.com/polysync-labs/reconciler/internal/core/config"
	"github.com/polysync-labs/reconciler/internal/infra/marketdata"
	redisclient "github.com/polysync-labs/reconciler/internal/infra/redis"
	"github.com/polysync-labs/reconciler/internal/infra/storage"
	"github.com/polysync-labs/reconciler/internal/infra/storage/memory"
	"github.com/polysync-labs/reconciler/internal/infra/storage/postgres"
	"github.com/polysync-labs/reconciler/internal/infra/venue"
	"github.com/polysync-labs/reconciler/internal/recon/claim"
	"github.com/polysync-labs/reconciler/internal/recon/escalation"
	"github.com/polysync-labs/reconciler/internal/recon/health"
	"github.com/polysync-labs/reconciler/internal/recon/worker"
	"github.com/polysync-labs/reconciler/migrations"
)

// Config holds the application configuration.
type Config struct {
	Port       int
	Database   postgres.Config
	Redis      redisclient.Config
	MarketData marketdata.Config
	Venue      venue.Config
	Queue      config.QueueConfig
	Ingest     config.IngestConfig
}

// Reconciler is the main application struct that manages the worker lifecycle.
type Reconciler struct {
	cfg          Config
	db           *postgres.DB
	redisClient  *redisclient.Client
	pool         *worker.FetchPool
	poller       *worker.OrderPoller
	ingest       *worker.TradeIngest
	retention    *worker.Retention
	healthServer *health.Server
	cancel       context.CancelFunc
	log          *slog.Logger
}

// New creates a new Reconciler instance with all dependencies initialized.
func New(cfg Config) (*Reconciler, error) {
	log := slog.Default().With("component", "control")

	// 1. Initialize Storage
	var queueRepo storage.ConditionQueueRepository
	var orderRepo storage.OrderRepository
	var marketRepo storage.MarketRepository
	var tradeRepo storage.TradeRepository
	var db *postgres.DB
	var pinger health.Pinger

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run embedded migrations
		goose.SetBaseFS(migrations.FS)
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "."); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		queueRepo = postgres.NewConditionQueueRepo(db, cfg.Queue.MaxBackoffExponent)
		orderRepo = postgres.NewOrderRepo(db)
		marketRepo = postgres.NewMarketRepo(db)
		tradeRepo = postgres.NewTradeRepo(db)
		pinger = db
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		queueRepo = memory.NewConditionQueueRepo(store, cfg.Queue.MaxBackoffExponent)
		orderRepo = memory.NewOrderRepo(store)
		marketRepo = memory.NewMarketRepo(store)
		tradeRepo = memory.NewTradeRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Initialize Redis (optional outcome dedup guard)
	var redisClient *redisclient.Client
	var guard escalation.Guard
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		guard = redisClient
		log.Info("Poll outcome dedup enabled")
	}

	// 3. External clients
	fetcher := marketdata.NewClient(cfg.MarketData)
	venueClient := venue.NewClient(cfg.Venue)

	// 4. Core components
	engine := claim.NewEngine(queueRepo)
	tracker := escalation.NewTracker(escalation.Config{
		NotFoundThreshold: cfg.Queue.NotFoundThreshold,
	}, orderRepo, guard)

	pool := worker.NewFetchPool(worker.FetchPoolConfig{
		Workers:       cfg.Queue.Workers,
		BatchLimit:    cfg.Queue.BatchLimit,
		ClaimInterval: cfg.Queue.ClaimInterval,
	}, engine, queueRepo, marketRepo, fetcher)

	poller := worker.NewOrderPoller(worker.OrderPollerConfig{
		Interval:  cfg.Queue.PollInterval,
		BatchSize: cfg.Queue.PollBatchSize,
	}, orderRepo, venueClient, tracker)

	ingest := worker.NewTradeIngest(worker.TradeIngestConfig{
		Wallets:  cfg.Ingest.Wallets,
		Interval: cfg.Ingest.Interval,
		Limit:    cfg.Ingest.Limit,
	}, tradeRepo, queueRepo, fetcher)

	retention := worker.NewRetention(cfg.Queue.Retention, queueRepo)

	monitor := health.NewMonitor(pinger, queueRepo)
	healthServer := health.NewServer(monitor, cfg.Port)

	return &Reconciler{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		pool:         pool,
		poller:       poller,
		ingest:       ingest,
		retention:    retention,
		healthServer: healthServer,
		log:          log,
	}, nil
}

// Start launches the workers and the health server.
func (r *Reconciler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if r.db != nil {
		r.db.StartMetricsCollector(ctx)
	}

	r.pool.Start(ctx)
	go r.poller.Run(ctx)
	go r.ingest.Run(ctx)
	go r.retention.Start(ctx)

	go func() {
		r.log.Info("Health server listening", "port", r.cfg.Port)
		if err := r.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("Health server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts down workers and connections gracefully.
func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.pool.Wait()

	if err := r.healthServer.Stop(ctx); err != nil {
		r.log.Warn("Health server shutdown failed", "error", err)
	}
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.Warn("Redis close failed", "error", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			return fmt.Errorf("failed to close db: %w", err)
		}
	}
	return nil
}
