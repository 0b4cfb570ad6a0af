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

func TestMustNewMetrics_RecordsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveOperation("merge", "success", 150*time.Millisecond)
	m.ObserveOperation("merge", "success", 20*time.Millisecond)
	m.ObserveOperation("unlock", "auth_error", time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.requests.WithLabelValues("merge", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("unlock", "auth_error")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestMustNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.IncRateLimited()
	second.IncRateLimited()

	assert.InDelta(t, 2, testutil.ToFloat64(first.rateLimited), 0)
}

func TestObserveProcess(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveProcess("/usr/bin/soffice", time.Second, nil)
	m.ObserveProcess("/usr/bin/soffice", time.Second, errors.New("exit status 1"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.processFailures.WithLabelValues("soffice")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.processDuration))
}

func TestStagingCounters(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.AddStagedBytes("merge", 1024)
	m.AddStagedBytes("merge", 0)
	m.CleanupFailed("/tmp/x", errors.New("busy"))
	m.AddSwept(3)
	m.AddSwept(-1)
	m.IncInFlight()
	m.IncInFlight()
	m.DecInFlight()

	assert.InDelta(t, 1024, testutil.ToFloat64(m.stagedBytes.WithLabelValues("merge")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cleanupFailures), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.sweptEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.inFlight), 0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveOperation("merge", "success", time.Second)
		m.IncInFlight()
		m.DecInFlight()
		m.AddStagedBytes("merge", 10)
		m.CleanupFailed("x", nil)
		m.ObserveProcess("soffice", time.Second, nil)
		m.IncRateLimited()
		m.AddSwept(1)
	})
}
