package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage"
)

// OrderRepo implements storage.OrderRepository using PostgreSQL.
type OrderRepo struct {
	db *DB
}

// NewOrderRepo creates a new PostgreSQL order repository.
func NewOrderRepo(db *DB) *OrderRepo {
	return &OrderRepo{db: db}
}

type orderRow struct {
	ID            string    `db:"id"`
	VenueOrderID  string    `db:"venue_order_id"`
	ConditionID   string    `db:"condition_id"`
	Side          string    `db:"side"`
	Status        string    `db:"status"`
	NotFoundCount int       `db:"not_found_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:            r.ID,
		VenueOrderID:  r.VenueOrderID,
		ConditionID:   r.ConditionID,
		Side:          r.Side,
		Status:        domain.OrderStatus(r.Status),
		NotFoundCount: r.NotFoundCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Create stores a new tracked order.
func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, venue_order_id, condition_id, side, status, not_found_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
	`
	status := string(order.Status)
	if status == "" {
		status = string(domain.OrderStatusOpen)
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.VenueOrderID,
		order.ConditionID,
		order.Side,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, venue_order_id, condition_id, side, status, not_found_count, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	var dest orderRow
	err := r.db.GetContext(ctx, &dest, query, id)
	if err == sql.ErrNoRows {
		return nil, storage.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return dest.toDomain(), nil
}

// ListPollable returns non-terminal orders, least recently updated first.
func (r *OrderRepo) ListPollable(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `
		SELECT id, venue_order_id, condition_id, side, status, not_found_count, created_at, updated_at
		FROM orders
		WHERE status IN ('open', 'matched')
		ORDER BY updated_at ASC
		LIMIT $1
	`
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list pollable orders: %w", err)
	}

	var orders []*domain.Order
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	return orders, nil
}

// ResetNotFound zeroes the consecutive not-found count.
func (r *OrderRepo) ResetNotFound(ctx context.Context, id string) error {
	query := `
		UPDATE orders
		SET not_found_count = 0, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// IncrementNotFound bumps the not-found count and flips a non-terminal order
// to lost when the new count reaches threshold. The increment and the status
// transition are one UPDATE, so no reader can observe a count at threshold
// with a pre-transition status.
func (r *OrderRepo) IncrementNotFound(
	ctx context.Context,
	id string,
	threshold int,
) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET not_found_count = not_found_count + 1,
		    status = CASE
		        WHEN not_found_count + 1 >= $2 AND status IN ('open', 'matched') THEN 'lost'
		        ELSE status
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, venue_order_id, condition_id, side, status, not_found_count, created_at, updated_at
	`
	var dest orderRow
	err := r.db.GetContext(ctx, &dest, query, id, threshold)
	if err == sql.ErrNoRows {
		return nil, storage.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment not-found count: %w", err)
	}
	return dest.toDomain(), nil
}

// UpdateStatus sets the order status.
func (r *OrderRepo) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.OrderStatus,
) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, string(status))
	return err
}
