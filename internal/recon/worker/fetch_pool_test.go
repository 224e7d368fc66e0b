package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/polysync-labs/reconciler/internal/core/backoff"
	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage/memory"
	"github.com/polysync-labs/reconciler/internal/recon/claim"
)

type stubFetcher struct {
	markets map[string]*domain.Market
	err     error
}

func (f *stubFetcher) FetchMarkets(
	ctx context.Context,
	conditionIDs []string,
) ([]*domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.Market
	for _, id := range conditionIDs {
		if m, ok := f.markets[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func newPool(t *testing.T, fetcher Fetcher) (*FetchPool, *memory.ConditionQueueRepo, *memory.MarketRepo) {
	t.Helper()
	store := memory.NewMemoryStorage()
	queue := memory.NewConditionQueueRepo(store, backoff.DefaultMaxExponent)
	markets := memory.NewMarketRepo(store)
	engine := claim.NewEngine(queue)
	pool := NewFetchPool(DefaultFetchPoolConfig(), engine, queue, markets, fetcher)
	return pool, queue, markets
}

func TestProcessMarksFetched(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{markets: map[string]*domain.Market{
		"c1": {ConditionID: "c1", Question: "q1"},
		"c2": {ConditionID: "c2", Question: "q2"},
	}}
	pool, queue, markets := newPool(t, fetcher)

	if err := queue.Enqueue(ctx, []string{"c1", "c2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ids, err := pool.engine.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	pool.process(ctx, ids)

	for _, id := range []string{"c1", "c2"} {
		item, _ := queue.Get(ctx, id)
		if !item.Fetched {
			t.Errorf("item %s not marked fetched", id)
		}
		m, _ := markets.GetByConditionID(ctx, id)
		if m == nil {
			t.Errorf("market %s not stored", id)
		}
	}
}

func TestProcessRecordsFailureOnFetchError(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{err: errors.New("api down")}
	pool, queue, _ := newPool(t, fetcher)

	if err := queue.Enqueue(ctx, []string{"c1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ids, err := pool.engine.ClaimBatch(ctx, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	pool.process(ctx, ids)

	item, _ := queue.Get(ctx, "c1")
	if item.Fetched {
		t.Error("item marked fetched despite fetch error")
	}
	if item.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", item.ErrorCount)
	}
}

func TestProcessUnknownConditionRetries(t *testing.T) {
	ctx := context.Background()
	// API knows c1 but not c2.
	fetcher := &stubFetcher{markets: map[string]*domain.Market{
		"c1": {ConditionID: "c1"},
	}}
	pool, queue, _ := newPool(t, fetcher)

	if err := queue.Enqueue(ctx, []string{"c1", "c2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ids, err := pool.engine.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	pool.process(ctx, ids)

	c1, _ := queue.Get(ctx, "c1")
	if !c1.Fetched || c1.ErrorCount != 0 {
		t.Errorf("c1 = %+v, want fetched with no errors", c1)
	}
	c2, _ := queue.Get(ctx, "c2")
	if c2.Fetched {
		t.Error("c2 marked fetched without metadata")
	}
	if c2.ErrorCount != 1 {
		t.Errorf("c2 error count = %d, want 1", c2.ErrorCount)
	}
}
