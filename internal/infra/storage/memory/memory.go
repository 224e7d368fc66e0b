package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/backoff"
	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage"
)

// MemoryStorage backs the repository interfaces with in-process maps. Used
// when no database is configured and by unit tests. All repos created from
// one MemoryStorage share a single mutex, which stands in for the row
// locking the postgres layer gets from the database.
type MemoryStorage struct {
	conditions map[string]*domain.ConditionFetch
	orders     map[string]*domain.Order
	markets    map[string]*domain.Market
	trades     map[string]*domain.Trade
	now        func() time.Time
	mu         sync.Mutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conditions: make(map[string]*domain.ConditionFetch),
		orders:     make(map[string]*domain.Order),
		markets:    make(map[string]*domain.Market),
		trades:     make(map[string]*domain.Trade),
		now:        time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// -----------------------------------------------------------------------------
// Condition Queue Repository
// -----------------------------------------------------------------------------

type ConditionQueueRepo struct {
	store       *MemoryStorage
	maxExponent int
}

func NewConditionQueueRepo(store *MemoryStorage, maxExponent int) *ConditionQueueRepo {
	return &ConditionQueueRepo{store: store, maxExponent: maxExponent}
}

func (r *ConditionQueueRepo) Enqueue(ctx context.Context, conditionIDs []string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range conditionIDs {
		if _, ok := r.store.conditions[id]; ok {
			continue
		}
		r.store.conditions[id] = &domain.ConditionFetch{
			ConditionID: id,
			CreatedAt:   r.store.now(),
		}
	}
	return nil
}

func (r *ConditionQueueRepo) ClaimBatch(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	var eligible []*domain.ConditionFetch
	for _, item := range r.store.conditions {
		if item.Fetched {
			continue
		}
		if backoff.Eligible(item.LastAttempt, item.ErrorCount, r.maxExponent, now) {
			eligible = append(eligible, item)
		}
	}

	// Never-attempted items first (oldest enqueued leading), then stalest
	// retries.
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		switch {
		case a.LastAttempt == nil && b.LastAttempt == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.LastAttempt == nil:
			return true
		case b.LastAttempt == nil:
			return false
		default:
			return a.LastAttempt.Before(*b.LastAttempt)
		}
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	ids := make([]string, 0, len(eligible))
	for _, item := range eligible {
		t := now
		item.LastAttempt = &t
		ids = append(ids, item.ConditionID)
	}
	return ids, nil
}

func (r *ConditionQueueRepo) MarkFetched(ctx context.Context, conditionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if item, ok := r.store.conditions[conditionID]; ok {
		item.Fetched = true
	}
	return nil
}

func (r *ConditionQueueRepo) RecordFailure(ctx context.Context, conditionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if item, ok := r.store.conditions[conditionID]; ok {
		item.ErrorCount++
	}
	return nil
}

func (r *ConditionQueueRepo) Get(
	ctx context.Context,
	conditionID string,
) (*domain.ConditionFetch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.conditions[conditionID]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (r *ConditionQueueRepo) CountPending(ctx context.Context) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, item := range r.store.conditions {
		if !item.Fetched {
			count++
		}
	}
	return count, nil
}

func (r *ConditionQueueRepo) DeleteFetchedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for id, item := range r.store.conditions {
		if item.Fetched && item.LastAttempt != nil && item.LastAttempt.Before(cutoff) {
			delete(r.store.conditions, id)
			deleted++
		}
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Order Repository
// -----------------------------------------------------------------------------

type OrderRepo struct {
	store *MemoryStorage
}

func NewOrderRepo(store *MemoryStorage) *OrderRepo {
	return &OrderRepo{store: store}
}

func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *order
	if cp.Status == "" {
		cp.Status = domain.OrderStatusOpen
	}
	now := r.store.now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.store.orders[cp.ID] = &cp
	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *OrderRepo) ListPollable(ctx context.Context, limit int) ([]*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var orders []*domain.Order
	for _, order := range r.store.orders {
		if order.Status.Terminal() {
			continue
		}
		cp := *order
		orders = append(orders, &cp)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].UpdatedAt.Before(orders[j].UpdatedAt)
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *OrderRepo) ResetNotFound(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	order.NotFoundCount = 0
	order.UpdatedAt = r.store.now()
	return nil
}

func (r *OrderRepo) IncrementNotFound(
	ctx context.Context,
	id string,
	threshold int,
) (*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	order.NotFoundCount++
	if order.NotFoundCount >= threshold && !order.Status.Terminal() {
		order.Status = domain.OrderStatusLost
	}
	order.UpdatedAt = r.store.now()
	cp := *order
	return &cp, nil
}

func (r *OrderRepo) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.OrderStatus,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = r.store.now()
	return nil
}

// -----------------------------------------------------------------------------
// Trade Repository
// -----------------------------------------------------------------------------

type TradeRepo struct {
	store *MemoryStorage
}

func NewTradeRepo(store *MemoryStorage) *TradeRepo {
	return &TradeRepo{store: store}
}

func (r *TradeRepo) InsertBatch(ctx context.Context, trades []*domain.Trade) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var inserted int64
	for _, t := range trades {
		if _, ok := r.store.trades[t.ID]; ok {
			continue
		}
		cp := *t
		cp.CreatedAt = r.store.now()
		r.store.trades[cp.ID] = &cp
		inserted++
	}
	return inserted, nil
}

// -----------------------------------------------------------------------------
// Market Repository
// -----------------------------------------------------------------------------

type MarketRepo struct {
	store *MemoryStorage
}

func NewMarketRepo(store *MemoryStorage) *MarketRepo {
	return &MarketRepo{store: store}
}

func (r *MarketRepo) UpsertBatch(ctx context.Context, markets []*domain.Market) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, m := range markets {
		cp := *m
		cp.UpdatedAt = r.store.now()
		r.store.markets[cp.ConditionID] = &cp
	}
	return nil
}

func (r *MarketRepo) GetByConditionID(
	ctx context.Context,
	conditionID string,
) (*domain.Market, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	market, ok := r.store.markets[conditionID]
	if !ok {
		return nil, nil
	}
	cp := *market
	return &cp, nil
}
