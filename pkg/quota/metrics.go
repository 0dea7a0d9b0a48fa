package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the ledger.
type Metrics struct {
	// ReserveDecisions counts reserve calls by result (granted, rejected).
	ReserveDecisions *prometheus.CounterVec

	// Rejections counts rejections by the scope of the rejecting bucket.
	Rejections *prometheus.CounterVec

	// CommittedTokens counts tokens booked at reconcile time, by scope.
	CommittedTokens *prometheus.CounterVec

	// ReleasedRuns counts aborted runs whose holds were released.
	ReleasedRuns prometheus.Counter

	// SweptReservations counts stale reservation rows deleted by sweeps.
	SweptReservations prometheus.Counter

	// ReserveDuration observes reserve call latency.
	ReserveDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. Create at most one per process.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a Metrics instance registered with a custom
// registerer, for embedders that keep their own registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReserveDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenledger_quota_reserve_decisions_total",
				Help: "Total number of reserve decisions by result",
			},
			[]string{"result"},
		),

		Rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenledger_quota_rejections_total",
				Help: "Total number of reserve rejections by rejecting bucket scope",
			},
			[]string{"scope"},
		),

		CommittedTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenledger_quota_committed_tokens_total",
				Help: "Total tokens booked as committed usage by scope",
			},
			[]string{"scope"},
		),

		ReleasedRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenledger_quota_released_runs_total",
				Help: "Total number of runs released without booking usage",
			},
		),

		SweptReservations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenledger_quota_swept_reservations_total",
				Help: "Total stale reservation rows deleted by the sweeper",
			},
		),

		ReserveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tokenledger_quota_reserve_duration_seconds",
				Help:    "Latency of reserve calls",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}
