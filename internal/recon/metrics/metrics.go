package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConditionsClaimed tracks queue items handed to fetch workers
	ConditionsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_conditions_claimed_total",
			Help: "Total number of condition lookups claimed by workers",
		},
	)

	// ConditionsFetched tracks successfully completed lookups
	ConditionsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_conditions_fetched_total",
			Help: "Total number of condition lookups completed successfully",
		},
	)

	// FetchFailures tracks failed lookup attempts
	FetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_fetch_failures_total",
			Help: "Total number of failed condition lookup attempts",
		},
	)

	// QueuePending tracks the number of unfetched queue items
	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_queue_pending",
			Help: "Number of condition lookups not yet fetched",
		},
	)

	// TradesIngested tracks newly stored venue fills
	TradesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_trades_ingested_total",
			Help: "Total number of new trades stored by the ingestion loop",
		},
	)

	// PollOutcomes tracks venue poll results by classification
	PollOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_poll_outcomes_total",
			Help: "Total number of venue polls by outcome",
		},
		[]string{"outcome"},
	)

	// OrdersLost tracks orders escalated to the terminal lost status
	OrdersLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_orders_lost_total",
			Help: "Total number of orders marked lost after repeated not-found responses",
		},
	)

	// MarketDataLatency tracks market-data API call latency
	MarketDataLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconciler_marketdata_latency_seconds",
			Help:    "Market-data API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DBConnectionPoolUsage tracks connection pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
