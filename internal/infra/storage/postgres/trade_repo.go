package postgres

import (
	"context"
	"fmt"

	"github.com/polysync-labs/reconciler/internal/core/domain"
)

// TradeRepo implements storage.TradeRepository using PostgreSQL.
type TradeRepo struct {
	db *DB
}

// NewTradeRepo creates a new PostgreSQL trade repository.
func NewTradeRepo(db *DB) *TradeRepo {
	return &TradeRepo{db: db}
}

// InsertBatch stores trades not yet recorded; known ids are ignored.
func (r *TradeRepo) InsertBatch(ctx context.Context, trades []*domain.Trade) (int64, error) {
	query := `
		INSERT INTO trades (
			id, condition_id, wallet_address, side,
			price, shares, token_id, tx_hash, executed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	var inserted int64
	for _, t := range trades {
		res, err := r.db.ExecContext(ctx, query,
			t.ID, t.ConditionID, t.Wallet, t.Side,
			t.Price, t.Shares, t.TokenID, t.TxHash, t.ExecutedAt)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert trade %s: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to read insert result: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}
