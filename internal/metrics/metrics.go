// Package metrics exposes Prometheus collectors for the reconciliation
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	BatchesTotal     *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
	MatchesCreated   *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec
	Conflicts        prometheus.Counter
	SettlementsTotal *prometheus.CounterVec
	StatusChanges    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_batches_total",
			Help: "Reconciliation batch runs by final status.",
		}, []string{"status"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciliation_batch_duration_seconds",
			Help:    "Wall-clock duration of reconciliation batches.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		MatchesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_matches_created_total",
			Help: "Matches committed by outcome status.",
		}, []string{"status"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_records_skipped_total",
			Help: "Malformed records and failed pair commits excluded from batches.",
		}, []string{"kind"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_commit_conflicts_total",
			Help: "Pair commits that lost an optimistic version check.",
		}),
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_resolutions_total",
			Help: "Settlement rule resolutions by result.",
		}, []string{"result"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confirmation_status_changes_total",
			Help: "Manual confirmation status changes by action.",
		}, []string{"action"}),
	}
	reg.MustRegister(
		m.BatchesTotal,
		m.BatchDuration,
		m.MatchesCreated,
		m.RecordsSkipped,
		m.Conflicts,
		m.SettlementsTotal,
		m.StatusChanges,
	)
	return m
}

// NewUnregistered returns collectors that are not exported anywhere.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
