package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
)

// MarketRepo implements storage.MarketRepository using PostgreSQL.
type MarketRepo struct {
	db *DB
}

// NewMarketRepo creates a new PostgreSQL market repository.
func NewMarketRepo(db *DB) *MarketRepo {
	return &MarketRepo{db: db}
}

// UpsertBatch inserts or refreshes market rows.
func (r *MarketRepo) UpsertBatch(ctx context.Context, markets []*domain.Market) error {
	query := `
		INSERT INTO markets (condition_id, question, event_slug, status, close_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (condition_id) DO UPDATE
		SET question = EXCLUDED.question,
		    event_slug = EXCLUDED.event_slug,
		    status = EXCLUDED.status,
		    close_time = EXCLUDED.close_time,
		    updated_at = NOW()
	`
	for _, m := range markets {
		var closeTime sql.NullTime
		if m.CloseTime != nil {
			closeTime = sql.NullTime{Time: *m.CloseTime, Valid: true}
		}
		if _, err := r.db.ExecContext(
			ctx,
			query,
			m.ConditionID,
			m.Question,
			m.EventSlug,
			m.Status,
			closeTime,
		); err != nil {
			return fmt.Errorf("failed to upsert market %s: %w", m.ConditionID, err)
		}
	}
	return nil
}

// GetByConditionID retrieves a market.
func (r *MarketRepo) GetByConditionID(
	ctx context.Context,
	conditionID string,
) (*domain.Market, error) {
	query := `
		SELECT condition_id, question, event_slug, status, close_time, updated_at
		FROM markets
		WHERE condition_id = $1
	`

	var dest struct {
		ConditionID string       `db:"condition_id"`
		Question    string       `db:"question"`
		EventSlug   string       `db:"event_slug"`
		Status      string       `db:"status"`
		CloseTime   sql.NullTime `db:"close_time"`
		UpdatedAt   time.Time    `db:"updated_at"`
	}

	err := r.db.GetContext(ctx, &dest, query, conditionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}

	market := &domain.Market{
		ConditionID: dest.ConditionID,
		Question:    dest.Question,
		EventSlug:   dest.EventSlug,
		Status:      dest.Status,
		UpdatedAt:   dest.UpdatedAt,
	}
	if dest.CloseTime.Valid {
		t := dest.CloseTime.Time
		market.CloseTime = &t
	}
	return market, nil
}
