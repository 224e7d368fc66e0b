package health

import (
	"context"

	"github.com/polysync-labs/reconciler/internal/infra/storage"
	"github.com/polysync-labs/reconciler/internal/recon/metrics"
)

// Status represents overall service health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Pinger is the storage health check.
type Pinger interface {
	Health(ctx context.Context) error
}

// Report summarizes service health.
type Report struct {
	Status            Status `json:"status"`
	Database          string `json:"database"`
	PendingConditions int    `json:"pending_conditions"`
}

// Monitor checks storage reachability and queue depth.
type Monitor struct {
	db    Pinger // nil when running on memory storage
	queue storage.ConditionQueueRepository
}

// NewMonitor creates a new health monitor.
func NewMonitor(db Pinger, queue storage.ConditionQueueRepository) *Monitor {
	return &Monitor{db: db, queue: queue}
}

// Check produces a health report.
func (m *Monitor) Check(ctx context.Context) Report {
	report := Report{Status: StatusHealthy, Database: "ok"}

	if m.db != nil {
		if err := m.db.Health(ctx); err != nil {
			report.Status = StatusCritical
			report.Database = err.Error()
			return report
		}
	}

	pending, err := m.queue.CountPending(ctx)
	if err != nil {
		report.Status = StatusDegraded
		return report
	}
	report.PendingConditions = pending
	metrics.QueuePending.Set(float64(pending))

	return report
}
