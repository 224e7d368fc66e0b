package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage"
	"github.com/polysync-labs/reconciler/internal/recon/metrics"
)

// TradeSource lists recent venue fills for a wallet.
type TradeSource interface {
	FetchTrades(ctx context.Context, wallet string, limit int) ([]*domain.Trade, error)
}

// TradeIngestConfig holds configuration for the trade ingestion loop.
type TradeIngestConfig struct {
	Wallets  []string      // followed wallets; empty disables ingestion
	Interval time.Duration // sync cadence (default: 5m)
	Limit    int           // trades per wallet per round (default: 1000)
}

// TradeIngest periodically syncs fills for the followed wallets and enqueues
// condition ids the store has not seen yet, so the fetch workers pick up
// their market metadata. Both the trade insert and the enqueue are
// insert-if-absent, so re-seeing the same fills is harmless.
type TradeIngest struct {
	cfg    TradeIngestConfig
	trades storage.TradeRepository
	queue  storage.ConditionQueueRepository
	source TradeSource
	log    *slog.Logger
}

// NewTradeIngest creates a new trade ingestion worker.
func NewTradeIngest(
	cfg TradeIngestConfig,
	trades storage.TradeRepository,
	queue storage.ConditionQueueRepository,
	source TradeSource,
) *TradeIngest {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	return &TradeIngest{
		cfg:    cfg,
		trades: trades,
		queue:  queue,
		source: source,
		log:    slog.Default().With("component", "trade_ingest"),
	}
}

// Run starts the ingestion loop.
func (w *TradeIngest) Run(ctx context.Context) {
	if len(w.cfg.Wallets) == 0 {
		w.log.Info("Trade ingestion disabled, no wallets configured")
		return
	}
	w.log.Info("Starting trade ingestion",
		"wallets", len(w.cfg.Wallets), "interval", w.cfg.Interval)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.ingestOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Trade ingestion stopped")
			return
		case <-ticker.C:
			w.ingestOnce(ctx)
		}
	}
}

func (w *TradeIngest) ingestOnce(ctx context.Context) {
	for _, wallet := range w.cfg.Wallets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		trades, err := w.source.FetchTrades(ctx, wallet, w.cfg.Limit)
		if err != nil {
			w.log.Warn("Failed to fetch trades", "wallet", wallet, "error", err)
			continue
		}
		if len(trades) == 0 {
			continue
		}

		inserted, err := w.trades.InsertBatch(ctx, trades)
		if err != nil {
			w.log.Error("Failed to store trades", "wallet", wallet, "error", err)
			continue
		}
		metrics.TradesIngested.Add(float64(inserted))

		seen := make(map[string]bool)
		var conditionIDs []string
		for _, t := range trades {
			if t.ConditionID == "" || seen[t.ConditionID] {
				continue
			}
			seen[t.ConditionID] = true
			conditionIDs = append(conditionIDs, t.ConditionID)
		}

		if len(conditionIDs) > 0 {
			if err := w.queue.Enqueue(ctx, conditionIDs); err != nil {
				w.log.Error("Failed to enqueue conditions", "wallet", wallet, "error", err)
				continue
			}
		}

		if inserted > 0 {
			w.log.Debug("Ingested trades",
				"wallet", wallet, "new", inserted, "conditions", len(conditionIDs))
		}
	}
}
