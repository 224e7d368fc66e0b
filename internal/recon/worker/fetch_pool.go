package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage"
	"github.com/polysync-labs/reconciler/internal/recon/claim"
	"github.com/polysync-labs/reconciler/internal/recon/metrics"
)

// Fetcher retrieves market metadata for a batch of condition ids.
type Fetcher interface {
	FetchMarkets(ctx context.Context, conditionIDs []string) ([]*domain.Market, error)
}

// FetchPoolConfig holds configuration for the fetch worker pool.
type FetchPoolConfig struct {
	Workers       int           // concurrent claim loops (default: 4)
	BatchLimit    int           // items per claim (default: 50)
	ClaimInterval time.Duration // sleep when the queue is empty (default: 5s)
}

// DefaultFetchPoolConfig returns default pool configuration.
func DefaultFetchPoolConfig() FetchPoolConfig {
	return FetchPoolConfig{
		Workers:       4,
		BatchLimit:    50,
		ClaimInterval: 5 * time.Second,
	}
}

// FetchPool runs concurrent workers that claim pending condition lookups,
// fetch market metadata for them, and record the outcome per item. Workers
// coordinate only through the storage layer; a worker that dies mid-batch
// leaves its items to re-expire via the claim backoff.
type FetchPool struct {
	cfg     FetchPoolConfig
	engine  *claim.Engine
	queue   storage.ConditionQueueRepository
	markets storage.MarketRepository
	fetcher Fetcher
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewFetchPool creates a new fetch worker pool.
func NewFetchPool(
	cfg FetchPoolConfig,
	engine *claim.Engine,
	queue storage.ConditionQueueRepository,
	markets storage.MarketRepository,
	fetcher Fetcher,
) *FetchPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 5 * time.Second
	}
	return &FetchPool{
		cfg:     cfg,
		engine:  engine,
		queue:   queue,
		markets: markets,
		fetcher: fetcher,
		log:     slog.Default().With("component", "fetch_pool"),
	}
}

// Start launches the worker loops.
func (p *FetchPool) Start(ctx context.Context) {
	p.log.Info("Starting fetch workers", "workers", p.cfg.Workers, "batchLimit", p.cfg.BatchLimit)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until all workers have stopped.
func (p *FetchPool) Wait() {
	p.wg.Wait()
}

func (p *FetchPool) run(ctx context.Context, id int) {
	log := p.log.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			log.Info("Fetch worker stopped")
			return
		default:
		}

		ids, err := p.engine.ClaimBatch(ctx, p.cfg.BatchLimit)
		if err != nil {
			log.Error("Failed to claim batch", "error", err)
			p.sleep(ctx)
			continue
		}
		if len(ids) == 0 {
			p.sleep(ctx)
			continue
		}

		p.process(ctx, ids)
	}
}

func (p *FetchPool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.ClaimInterval):
	}
}

// process fetches metadata for one claimed batch and records exactly one
// outcome per claimed id.
func (p *FetchPool) process(ctx context.Context, ids []string) {
	markets, err := p.fetcher.FetchMarkets(ctx, ids)
	if err != nil {
		p.log.Warn("Market fetch failed", "count", len(ids), "error", err)
		p.fail(ctx, ids)
		return
	}

	if len(markets) > 0 {
		if err := p.markets.UpsertBatch(ctx, markets); err != nil {
			// The fetch succeeded but nothing was persisted, so the items
			// must come around again.
			p.log.Error("Failed to store markets", "error", err)
			p.fail(ctx, ids)
			return
		}
	}

	byID := make(map[string]*domain.Market, len(markets))
	for _, m := range markets {
		byID[m.ConditionID] = m
	}

	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			// Unknown to the API yet; retry after backoff.
			if err := p.queue.RecordFailure(ctx, id); err != nil {
				p.log.Error("Failed to record fetch failure", "condition", id, "error", err)
			}
			metrics.FetchFailures.Inc()
			continue
		}
		if err := p.queue.MarkFetched(ctx, id); err != nil {
			p.log.Error("Failed to mark condition fetched", "condition", id, "error", err)
			continue
		}
		metrics.ConditionsFetched.Inc()
	}
}

func (p *FetchPool) fail(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := p.queue.RecordFailure(ctx, id); err != nil {
			p.log.Error("Failed to record fetch failure", "condition", id, "error", err)
		}
	}
	metrics.FetchFailures.Add(float64(len(ids)))
}
