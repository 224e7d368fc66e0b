package storage

import (
	"context"
	"errors"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
)

var (
	// ErrOrderNotFound is returned when an order doesn't exist locally
	ErrOrderNotFound = errors.New("order not found")
)

// ConditionQueueRepository handles the durable queue of pending market lookups
type ConditionQueueRepository interface {
	// Enqueue inserts condition ids that are not yet queued; known ids are ignored
	Enqueue(ctx context.Context, conditionIDs []string) error

	// ClaimBatch atomically marks up to limit eligible items in flight
	// (last_attempt = now) and returns their condition ids. Rows held by a
	// concurrent claimer are skipped, never waited on, so the result may be
	// smaller than limit.
	ClaimBatch(ctx context.Context, limit int) ([]string, error)

	// MarkFetched records a successful lookup; the item is never claimed again
	MarkFetched(ctx context.Context, conditionID string) error

	// RecordFailure increments the consecutive-failure count
	RecordFailure(ctx context.Context, conditionID string) error

	// Get retrieves a queue item, nil when unknown
	Get(ctx context.Context, conditionID string) (*domain.ConditionFetch, error)

	// CountPending returns the number of unfetched items
	CountPending(ctx context.Context) (int, error)

	// DeleteFetchedBefore removes fetched items last touched before cutoff
	DeleteFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrderRepository handles tracked orders mirroring the external venue
type OrderRepository interface {
	// Create stores a new tracked order
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ListPollable returns orders in a non-terminal status, least recently
	// updated first
	ListPollable(ctx context.Context, limit int) ([]*domain.Order, error)

	// ResetNotFound zeroes the consecutive not-found count
	ResetNotFound(ctx context.Context, id string) error

	// IncrementNotFound bumps the not-found count and, in the same update,
	// transitions a non-terminal order to lost when the new count reaches
	// threshold. Returns the order as updated.
	IncrementNotFound(ctx context.Context, id string, threshold int) (*domain.Order, error)

	// UpdateStatus sets the order status
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

// TradeRepository stores venue fills observed for followed wallets
type TradeRepository interface {
	// InsertBatch stores trades not yet recorded; known ids are ignored.
	// Returns the number of newly inserted rows.
	InsertBatch(ctx context.Context, trades []*domain.Trade) (int64, error)
}

// MarketRepository stores market metadata fetched from the market-data API
type MarketRepository interface {
	// UpsertBatch inserts or refreshes market rows
	UpsertBatch(ctx context.Context, markets []*domain.Market) error

	// GetByConditionID retrieves a market, nil when unknown
	GetByConditionID(ctx context.Context, conditionID string) (*domain.Market, error)
}
