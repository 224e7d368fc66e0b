// Package escalation turns classified venue poll responses into order state.
// An order the venue repeatedly reports as unknown is escalated to the
// terminal lost status once the consecutive not-found count reaches the
// configured threshold.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage"
	"github.com/polysync-labs/reconciler/internal/recon/metrics"
)

// Guard deduplicates poll outcomes so a redelivered outcome is not counted
// twice. Optional; without one, at-most-once delivery per physical poll is
// the caller's obligation. Release undoes a claim whose outcome was not
// applied, so a retry with the same poll id is not dropped as a replay.
type Guard interface {
	ClaimPoll(ctx context.Context, orderID, pollID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, orderID, pollID string) error
}

// Config holds escalation settings.
type Config struct {
	NotFoundThreshold int
	GuardTTL          time.Duration
}

// DefaultConfig returns default escalation configuration.
func DefaultConfig() Config {
	return Config{
		NotFoundThreshold: 3,
		GuardTTL:          24 * time.Hour,
	}
}

type Tracker struct {
	cfg    Config
	orders storage.OrderRepository
	guard  Guard
	log    *slog.Logger
}

// NewTracker creates a new escalation tracker. guard may be nil.
func NewTracker(cfg Config, orders storage.OrderRepository, guard Guard) *Tracker {
	if cfg.NotFoundThreshold <= 0 {
		cfg.NotFoundThreshold = 3
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = 24 * time.Hour
	}
	return &Tracker{
		cfg:    cfg,
		orders: orders,
		guard:  guard,
		log:    slog.Default().With("component", "escalation"),
	}
}

// RecordOutcome applies one classified venue response to an order:
//
//   - found resets the consecutive not-found count,
//   - notFound increments it and, atomically with the increment, transitions
//     the order to lost when the count reaches the threshold,
//   - otherError records nothing, since a local or transient failure says
//     nothing about the venue-side state of the order.
//
// pollID identifies the physical poll; with a guard configured, replays of
// the same poll id are dropped.
func (t *Tracker) RecordOutcome(
	ctx context.Context,
	orderID, pollID string,
	outcome domain.PollOutcome,
) error {
	metrics.PollOutcomes.WithLabelValues(string(outcome)).Inc()

	if outcome == domain.OutcomeOtherError {
		return nil
	}

	claimed := false
	if t.guard != nil && pollID != "" {
		fresh, err := t.guard.ClaimPoll(ctx, orderID, pollID, t.cfg.GuardTTL)
		if err != nil {
			return fmt.Errorf("claim poll %s: %w", pollID, err)
		}
		if !fresh {
			t.log.Debug("Dropping replayed poll outcome", "order", orderID, "poll", pollID)
			return nil
		}
		claimed = true
	}

	switch outcome {
	case domain.OutcomeFound:
		if err := t.orders.ResetNotFound(ctx, orderID); err != nil {
			t.release(ctx, orderID, pollID, claimed)
			return fmt.Errorf("reset not-found count: %w", err)
		}

	case domain.OutcomeNotFound:
		order, err := t.orders.IncrementNotFound(ctx, orderID, t.cfg.NotFoundThreshold)
		if err != nil {
			t.release(ctx, orderID, pollID, claimed)
			return fmt.Errorf("increment not-found count: %w", err)
		}
		if order.Status == domain.OrderStatusLost &&
			order.NotFoundCount == t.cfg.NotFoundThreshold {
			metrics.OrdersLost.Inc()
			t.log.Warn("Order lost on venue",
				"order", orderID,
				"venueOrder", order.VenueOrderID,
				"notFoundCount", order.NotFoundCount)
		}
	}
	return nil
}

// release frees the guard claim after a failed mutation, so the caller can
// retry the same poll id without it being dropped as a replay.
func (t *Tracker) release(ctx context.Context, orderID, pollID string, claimed bool) {
	if !claimed {
		return
	}
	if err := t.guard.Release(ctx, orderID, pollID); err != nil {
		t.log.Warn("Failed to release poll claim",
			"order", orderID, "poll", pollID, "error", err)
	}
}

// Threshold returns the configured consecutive not-found threshold.
func (t *Tracker) Threshold() int {
	return t.cfg.NotFoundThreshold
}
