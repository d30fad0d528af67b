package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported by the reservation workload.
type Metrics struct {
	// Reservation outcomes (strategy: direct/queued, status: confirmed/rejected/error,
	// reason: seat-taken/user-already-seated or empty).
	ReservationOutcomes *prometheus.CounterVec

	// Intake appends (status: success/error).
	RequestsSubmitted *prometheus.CounterVec

	// Conditional writes that lost to a concurrent writer (strategy).
	ClaimConflicts *prometheus.CounterVec

	// Reconciliation pass latency (status: success/busy/error).
	ReconcileDuration *prometheus.HistogramVec

	// Lease operations (operation: acquire/extend/release, status: success/failed).
	LockDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReservationOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_outcomes_total",
				Help: "Reservation attempts by strategy and outcome",
			},
			[]string{"strategy", "status", "reason"},
		),
		RequestsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_requests_submitted_total",
				Help: "Reservation requests appended to the intake",
			},
			[]string{"status"},
		),
		ClaimConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_claim_conflicts_total",
				Help: "Conditional seat claims rejected by the store",
			},
			[]string{"strategy"},
		),
		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_pass_duration_seconds",
				Help:    "Duration of reconciliation passes",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		LockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_lock_duration_seconds",
				Help:    "Time spent on reconciler lease operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	reg.MustRegister(
		m.ReservationOutcomes,
		m.RequestsSubmitted,
		m.ClaimConflicts,
		m.ReconcileDuration,
		m.LockDuration,
	)

	return m
}

// ObserveOutcome counts one resolved attempt. Safe on a nil receiver.
func (m *Metrics) ObserveOutcome(strategy, status, reason string) {
	if m == nil {
		return
	}
	m.ReservationOutcomes.WithLabelValues(strategy, status, reason).Inc()
}

func (m *Metrics) ObserveSubmit(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RequestsSubmitted.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveConflict(strategy string) {
	if m == nil {
		return
	}
	m.ClaimConflicts.WithLabelValues(strategy).Inc()
}

func (m *Metrics) ObserveReconcile(status string, started time.Time) {
	if m == nil {
		return
	}
	m.ReconcileDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveLock(operation string, err error, started time.Time) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.LockDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
