package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
)

// ConditionQueueRepo implements storage.ConditionQueueRepository using PostgreSQL.
type ConditionQueueRepo struct {
	db          *DB
	maxExponent int
}

// NewConditionQueueRepo creates a new PostgreSQL condition queue repository.
// maxExponent caps the backoff interval at 2^maxExponent minutes.
func NewConditionQueueRepo(db *DB, maxExponent int) *ConditionQueueRepo {
	return &ConditionQueueRepo{db: db, maxExponent: maxExponent}
}

// Enqueue inserts condition ids that are not yet queued.
func (r *ConditionQueueRepo) Enqueue(ctx context.Context, conditionIDs []string) error {
	query := `
		INSERT INTO condition_fetch_queue (condition_id, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (condition_id) DO NOTHING
	`
	for _, id := range conditionIDs {
		if _, err := r.db.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("failed to enqueue condition %s: %w", id, err)
		}
	}
	return nil
}

// ClaimBatch marks up to limit eligible items in flight and returns their ids.
//
// Eligibility and ordering happen inside one transaction with
// FOR UPDATE SKIP LOCKED, so concurrent claimers never block on each other and
// never receive the same row. Setting last_attempt before returning doubles as
// the lease: a worker that dies without reporting an outcome leaves the row
// re-eligible after one backoff interval.
func (r *ConditionQueueRepo) ClaimBatch(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		WITH picked AS (
			SELECT condition_id, last_attempt
			FROM condition_fetch_queue
			WHERE fetched = FALSE
			  AND (last_attempt IS NULL
			       OR last_attempt + make_interval(mins => (2 ^ LEAST(error_count, $2))::int) <= NOW())
			ORDER BY last_attempt ASC NULLS FIRST
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		), updated AS (
			UPDATE condition_fetch_queue q
			SET last_attempt = NOW()
			FROM picked
			WHERE q.condition_id = picked.condition_id
			RETURNING q.condition_id
		)
		SELECT p.condition_id
		FROM picked p
		JOIN updated u USING (condition_id)
		ORDER BY p.last_attempt ASC NULLS FIRST
	`

	rows, err := tx.QueryContext(ctx, query, limit, r.maxExponent)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan claimed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed ids: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim tx: %w", err)
	}
	return ids, nil
}

// MarkFetched records a successful lookup.
func (r *ConditionQueueRepo) MarkFetched(ctx context.Context, conditionID string) error {
	query := `
		UPDATE condition_fetch_queue
		SET fetched = TRUE
		WHERE condition_id = $1
	`
	_, err := r.db.ExecContext(ctx, query, conditionID)
	return err
}

// RecordFailure increments the consecutive-failure count.
func (r *ConditionQueueRepo) RecordFailure(ctx context.Context, conditionID string) error {
	query := `
		UPDATE condition_fetch_queue
		SET error_count = error_count + 1
		WHERE condition_id = $1
	`
	_, err := r.db.ExecContext(ctx, query, conditionID)
	return err
}

// Get retrieves a queue item.
func (r *ConditionQueueRepo) Get(
	ctx context.Context,
	conditionID string,
) (*domain.ConditionFetch, error) {
	query := `
		SELECT condition_id, fetched, last_attempt, error_count, created_at
		FROM condition_fetch_queue
		WHERE condition_id = $1
	`

	var dest struct {
		ConditionID string       `db:"condition_id"`
		Fetched     bool         `db:"fetched"`
		LastAttempt sql.NullTime `db:"last_attempt"`
		ErrorCount  int          `db:"error_count"`
		CreatedAt   time.Time    `db:"created_at"`
	}

	err := r.db.GetContext(ctx, &dest, query, conditionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}

	item := &domain.ConditionFetch{
		ConditionID: dest.ConditionID,
		Fetched:     dest.Fetched,
		ErrorCount:  dest.ErrorCount,
		CreatedAt:   dest.CreatedAt,
	}
	if dest.LastAttempt.Valid {
		t := dest.LastAttempt.Time
		item.LastAttempt = &t
	}
	return item, nil
}

// CountPending returns the number of unfetched items.
func (r *ConditionQueueRepo) CountPending(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM condition_fetch_queue
		WHERE fetched = FALSE
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count pending conditions: %w", err)
	}
	return count, nil
}

// DeleteFetchedBefore removes fetched items last touched before cutoff.
func (r *ConditionQueueRepo) DeleteFetchedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `
		DELETE FROM condition_fetch_queue
		WHERE fetched = TRUE AND last_attempt < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete fetched conditions: %w", err)
	}
	return res.RowsAffected()
}
