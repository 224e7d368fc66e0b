package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/polysync-labs/reconciler/internal/infra/storage"
)

// Retention deletes fetched queue rows older than the configured period.
// A period of zero disables deletion; fetched rows are terminal either way.
type Retention struct {
	period time.Duration
	queue  storage.ConditionQueueRepository
	log    *slog.Logger
}

// NewRetention creates a new retention worker.
func NewRetention(period time.Duration, queue storage.ConditionQueueRepository) *Retention {
	return &Retention{
		period: period,
		queue:  queue,
		log:    slog.Default().With("component", "retention"),
	}
}

// Start runs the retention loop.
func (r *Retention) Start(ctx context.Context) {
	if r.period <= 0 {
		return // Retention disabled
	}

	interval := min(r.period/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Retention) prune(ctx context.Context) {
	cutoff := time.Now().Add(-r.period)
	deleted, err := r.queue.DeleteFetchedBefore(ctx, cutoff)
	if err != nil {
		r.log.Error("Failed to prune fetched conditions", "error", err)
		return
	}
	if deleted > 0 {
		r.log.Info("Pruned fetched conditions", "deleted", deleted, "cutoff", cutoff)
	}
}
