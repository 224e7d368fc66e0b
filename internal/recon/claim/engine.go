// Package claim hands out batches of pending condition lookups to fetch
// workers. Mutual exclusion between concurrent claimers is delegated to the
// storage layer's skip-locked row selection, so the engine itself holds no
// state between calls.
package claim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polysync-labs/reconciler/internal/infra/storage"
	"github.com/polysync-labs/reconciler/internal/recon/metrics"
)

type Engine struct {
	repo storage.ConditionQueueRepository
	log  *slog.Logger
}

func NewEngine(repo storage.ConditionQueueRepository) *Engine {
	return &Engine{
		repo: repo,
		log:  slog.Default().With("component", "claim"),
	}
}

// ClaimBatch marks up to limit eligible queue items in flight and returns
// their condition ids. A limit below 1 is clamped to 1. The batch may be
// smaller than limit when concurrent claimers hold some of the selected
// rows; callers must not treat a short batch as an error.
func (e *Engine) ClaimBatch(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}

	ids, err := e.repo.ClaimBatch(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}

	if len(ids) > 0 {
		metrics.ConditionsClaimed.Add(float64(len(ids)))
		e.log.Debug("Claimed batch", "count", len(ids), "limit", limit)
	}
	return ids, nil
}
