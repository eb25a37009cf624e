package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rideline_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	HoldsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rideline_holds_active",
			Help: "Holds currently alive in the manager",
		},
	)

	HoldConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rideline_hold_conflicts_total",
			Help: "Hold attempts rejected because a cell was booked or held by another operator",
		},
	)

	SweepReleasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rideline_sweep_released_total",
			Help: "Holds released by the expiry sweep",
		},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rideline_bookings_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rideline_db_tx_seconds",
			Help:    "Duration of booking and materialization transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	TripsMaterializedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rideline_trips_materialized_total",
			Help: "Trips created from recurring bases",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rideline_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rideline_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
