package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	require.NotNil(t, m)
	assert.NotNil(t, m.ReservationOutcomes)
	assert.NotNil(t, m.RequestsSubmitted)
	assert.NotNil(t, m.ClaimConflicts)
	assert.NotNil(t, m.ReconcileDuration)
	assert.NotNil(t, m.LockDuration)
}

func TestObserveOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveOutcome("direct", "confirmed", "")
	m.ObserveOutcome("queued", "rejected", "seat-taken")
	m.ObserveOutcome("queued", "rejected", "seat-taken")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReservationOutcomes.WithLabelValues("direct", "confirmed", "")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ReservationOutcomes.WithLabelValues("queued", "rejected", "seat-taken")))
}

func TestObserveSubmitAndConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveSubmit(nil)
	m.ObserveSubmit(errors.New("boom"))
	m.ObserveConflict("direct")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsSubmitted.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsSubmitted.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClaimConflicts.WithLabelValues("direct")))
}

func TestHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveReconcile("success", time.Now())
	m.ObserveLock("acquire", nil, time.Now())
	m.ObserveLock("acquire", errors.New("held"), time.Now())

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["reconcile_pass_duration_seconds"])
	assert.True(t, names["reconcile_lock_duration_seconds"])
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveOutcome("direct", "confirmed", "")
		m.ObserveSubmit(nil)
		m.ObserveConflict("queued")
		m.ObserveReconcile("success", time.Now())
		m.ObserveLock("release", nil, time.Now())
	})
}
