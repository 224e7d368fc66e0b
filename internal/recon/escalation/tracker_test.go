package escalation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/infra/storage/memory"
)

func newTracker(t *testing.T, cfg Config, guard Guard) (*Tracker, *memory.OrderRepo) {
	t.Helper()
	store := memory.NewMemoryStorage()
	repo := memory.NewOrderRepo(store)
	return NewTracker(cfg, repo, guard), repo
}

func mustCreate(t *testing.T, repo *memory.OrderRepo, id string) {
	t.Helper()
	if err := repo.Create(context.Background(), &domain.Order{ID: id, VenueOrderID: "v-" + id}); err != nil {
		t.Fatalf("create order: %v", err)
	}
}

func TestNotFoundThresholdEscalates(t *testing.T) {
	ctx := context.Background()
	tracker, repo := newTracker(t, Config{NotFoundThreshold: 3}, nil)
	mustCreate(t, repo, "o1")

	for i := 1; i <= 3; i++ {
		if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeNotFound); err != nil {
			t.Fatalf("record outcome %d: %v", i, err)
		}
	}

	order, err := repo.GetByID(ctx, "o1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.NotFoundCount != 3 {
		t.Errorf("count = %d, want 3", order.NotFoundCount)
	}
	if order.Status != domain.OrderStatusLost {
		t.Errorf("status = %s, want lost", order.Status)
	}
}

func TestFoundResetsCount(t *testing.T) {
	ctx := context.Background()
	tracker, repo := newTracker(t, Config{NotFoundThreshold: 3}, nil)
	mustCreate(t, repo, "o1")

	// Two misses, then a hit, then the walk to lost starts over.
	for i := 0; i < 2; i++ {
		if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeNotFound); err != nil {
			t.Fatalf("record not found: %v", err)
		}
	}
	if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeFound); err != nil {
		t.Fatalf("record found: %v", err)
	}

	order, _ := repo.GetByID(ctx, "o1")
	if order.NotFoundCount != 0 {
		t.Errorf("count = %d after found, want 0", order.NotFoundCount)
	}
	if order.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s after found, want open", order.Status)
	}

	for i := 0; i < 2; i++ {
		if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeNotFound); err != nil {
			t.Fatalf("record not found: %v", err)
		}
	}
	order, _ = repo.GetByID(ctx, "o1")
	if order.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s two misses after reset, want open", order.Status)
	}

	if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeNotFound); err != nil {
		t.Fatalf("record not found: %v", err)
	}
	order, _ = repo.GetByID(ctx, "o1")
	if order.Status != domain.OrderStatusLost {
		t.Errorf("status = %s at threshold, want lost", order.Status)
	}
}

func TestOtherErrorIsNoOp(t *testing.T) {
	ctx := context.Background()
	tracker, repo := newTracker(t, Config{NotFoundThreshold: 3}, nil)
	mustCreate(t, repo, "o1")

	if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeNotFound); err != nil {
		t.Fatalf("record not found: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeOtherError); err != nil {
			t.Fatalf("record other error: %v", err)
		}
	}

	order, _ := repo.GetByID(ctx, "o1")
	if order.NotFoundCount != 1 {
		t.Errorf("count = %d after transient errors, want 1", order.NotFoundCount)
	}
}

func TestLostIsTerminal(t *testing.T) {
	ctx := context.Background()
	tracker, repo := newTracker(t, Config{NotFoundThreshold: 2}, nil)
	mustCreate(t, repo, "o1")

	for i := 0; i < 2; i++ {
		if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeNotFound); err != nil {
			t.Fatalf("record not found: %v", err)
		}
	}
	order, _ := repo.GetByID(ctx, "o1")
	if order.Status != domain.OrderStatusLost {
		t.Fatalf("status = %s, want lost", order.Status)
	}

	// A late found must not resurrect the order's status.
	if err := tracker.RecordOutcome(ctx, "o1", "", domain.OutcomeFound); err != nil {
		t.Fatalf("record found: %v", err)
	}
	order, _ = repo.GetByID(ctx, "o1")
	if order.Status != domain.OrderStatusLost {
		t.Errorf("status = %s after late found, want lost", order.Status)
	}
}

type fakeGuard struct {
	seen map[string]bool
}

func (g *fakeGuard) ClaimPoll(
	ctx context.Context,
	orderID, pollID string,
	ttl time.Duration,
) (bool, error) {
	key := orderID + ":" + pollID
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *fakeGuard) Release(ctx context.Context, orderID, pollID string) error {
	delete(g.seen, orderID+":"+pollID)
	return nil
}

func TestGuardDropsReplayedOutcome(t *testing.T) {
	ctx := context.Background()
	guard := &fakeGuard{seen: make(map[string]bool)}
	tracker, repo := newTracker(t, Config{NotFoundThreshold: 3}, guard)
	mustCreate(t, repo, "o1")

	// The same physical poll delivered three times counts once.
	for i := 0; i < 3; i++ {
		if err := tracker.RecordOutcome(ctx, "o1", "poll-1", domain.OutcomeNotFound); err != nil {
			t.Fatalf("record outcome: %v", err)
		}
	}

	order, _ := repo.GetByID(ctx, "o1")
	if order.NotFoundCount != 1 {
		t.Errorf("count = %d after replays, want 1", order.NotFoundCount)
	}
	if order.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s after replays, want open", order.Status)
	}
}

type flakyOrderRepo struct {
	*memory.OrderRepo
	failures int
}

func (r *flakyOrderRepo) IncrementNotFound(
	ctx context.Context,
	id string,
	threshold int,
) (*domain.Order, error) {
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("storage unavailable")
	}
	return r.OrderRepo.IncrementNotFound(ctx, id, threshold)
}

func TestGuardReleasedOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	repo := &flakyOrderRepo{OrderRepo: memory.NewOrderRepo(store), failures: 1}
	guard := &fakeGuard{seen: make(map[string]bool)}
	tracker := NewTracker(Config{NotFoundThreshold: 3}, repo, guard)
	mustCreate(t, repo.OrderRepo, "o1")

	// The first attempt claims the poll id but fails to apply the outcome,
	// so the claim must be released and the same poll id must go through
	// on retry.
	if err := tracker.RecordOutcome(ctx, "o1", "poll-1", domain.OutcomeNotFound); err == nil {
		t.Fatal("expected error from first attempt")
	}
	if err := tracker.RecordOutcome(ctx, "o1", "poll-1", domain.OutcomeNotFound); err != nil {
		t.Fatalf("retry with same poll id: %v", err)
	}

	order, _ := repo.GetByID(ctx, "o1")
	if order.NotFoundCount != 1 {
		t.Errorf("count = %d after retry, want 1", order.NotFoundCount)
	}

	// A genuine replay after the applied attempt is still dropped.
	if err := tracker.RecordOutcome(ctx, "o1", "poll-1", domain.OutcomeNotFound); err != nil {
		t.Fatalf("replay: %v", err)
	}
	order, _ = repo.GetByID(ctx, "o1")
	if order.NotFoundCount != 1 {
		t.Errorf("count = %d after replay, want 1", order.NotFoundCount)
	}
}
