package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage"
	"github.com/polysync-labs/reconciler/internal/recon/escalation"
)

// Venue reports the venue-side state of an order.
type Venue interface {
	Poll(ctx context.Context, venueOrderID string) (domain.PollOutcome, *domain.VenueOrder, error)
}

// OrderPollerConfig holds configuration for the order poller.
type OrderPollerConfig struct {
	Interval  time.Duration // poll cadence (default: 30s)
	BatchSize int           // orders per round (default: 100)
}

// OrderPoller periodically polls the matching venue for every tracked order
// in a non-terminal status and feeds the classified outcome to the
// escalation tracker.
type OrderPoller struct {
	cfg     OrderPollerConfig
	orders  storage.OrderRepository
	venue   Venue
	tracker *escalation.Tracker
	log     *slog.Logger
}

// NewOrderPoller creates a new order poller.
func NewOrderPoller(
	cfg OrderPollerConfig,
	orders storage.OrderRepository,
	venue Venue,
	tracker *escalation.Tracker,
) *OrderPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &OrderPoller{
		cfg:     cfg,
		orders:  orders,
		venue:   venue,
		tracker: tracker,
		log:     slog.Default().With("component", "order_poller"),
	}
}

// Run starts the poll loop.
func (p *OrderPoller) Run(ctx context.Context) {
	p.log.Info("Starting order poller", "interval", p.cfg.Interval)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Order poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *OrderPoller) pollOnce(ctx context.Context) {
	orders, err := p.orders.ListPollable(ctx, p.cfg.BatchSize)
	if err != nil {
		p.log.Error("Failed to list pollable orders", "error", err)
		return
	}

	for _, order := range orders {
		select {
		case <-ctx.Done():
			return
		default:
		}

		outcome, state, err := p.venue.Poll(ctx, order.VenueOrderID)
		if err != nil && outcome == domain.OutcomeOtherError {
			p.log.Debug("Venue poll failed", "order", order.ID, "error", err)
		}

		// Retries reuse the poll id, so the dedup guard drops the second
		// application if the first one actually landed.
		pollID := uuid.NewString()
		b := retry.WithMaxRetries(2, retry.NewConstant(250*time.Millisecond))
		err = retry.Do(ctx, b, func(ctx context.Context) error {
			if err := p.tracker.RecordOutcome(ctx, order.ID, pollID, outcome); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			p.log.Warn("Failed to record poll outcome",
				"order", order.ID, "outcome", outcome, "error", err)
			continue
		}

		// Matched transitions come from the venue, not the tracker.
		if outcome == domain.OutcomeFound && state != nil &&
			state.Status == "matched" && order.Status == domain.OrderStatusOpen {
			if err := p.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusMatched); err != nil {
				p.log.Warn("Failed to mark order matched", "order", order.ID, "error", err)
			}
		}
	}
}
