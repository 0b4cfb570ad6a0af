// Package metrics exposes Prometheus collectors for the conversion pipeline.
package metrics

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pdf_office"

// Metrics holds the collectors reported on /metrics
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	stagedBytes     *prometheus.CounterVec
	cleanupFailures prometheus.Counter
	processDuration *prometheus.HistogramVec
	processFailures *prometheus.CounterVec
	rateLimited     prometheus.Counter
	sweptEntries    prometheus.Counter
}

// MustNewMetrics constructs and registers the collectors with reg.
// Registering twice with the same registry reuses the existing collectors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "requests_total",
				Help:      "Conversion requests by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "duration_seconds",
				Help:      "Time from staged upload to emitted response.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "in_flight",
				Help:      "Conversion requests currently being processed.",
			},
		),
		stagedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "staging",
				Name:      "uploaded_bytes_total",
				Help:      "Bytes written to the staging area by uploads.",
			},
			[]string{"operation"},
		),
		cleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "staging",
				Name:      "cleanup_failures_total",
				Help:      "Staged entries that could not be removed.",
			},
		),
		processDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "converter",
				Name:      "duration_seconds",
				Help:      "Wall time of external converter processes.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"binary"},
		),
		processFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "converter",
				Name:      "failures_total",
				Help:      "External converter runs that failed.",
			},
			[]string{"binary"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter.",
			},
		),
		sweptEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "staging",
				Name:      "swept_entries_total",
				Help:      "Orphaned staged entries removed by the janitor.",
			},
		),
	}

	m.requests = register(reg, m.requests)
	m.requestDuration = register(reg, m.requestDuration)
	m.inFlight = register(reg, m.inFlight)
	m.stagedBytes = register(reg, m.stagedBytes)
	m.cleanupFailures = register(reg, m.cleanupFailures)
	m.processDuration = register(reg, m.processDuration)
	m.processFailures = register(reg, m.processFailures)
	m.rateLimited = register(reg, m.rateLimited)
	m.sweptEntries = register(reg, m.sweptEntries)

	return m
}

// register adds c to reg, returning the already registered collector on a duplicate
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveOperation records the outcome and duration of one request
func (m *Metrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncInFlight marks a request as started
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// DecInFlight marks a request as finished
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// AddStagedBytes counts uploaded bytes for an operation
func (m *Metrics) AddStagedBytes(operation string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.stagedBytes.WithLabelValues(operation).Add(float64(n))
}

// CleanupFailed counts a staged entry that could not be removed
func (m *Metrics) CleanupFailed(path string, err error) {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// ObserveProcess records an external converter run
func (m *Metrics) ObserveProcess(binary string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	name := filepath.Base(binary)
	m.processDuration.WithLabelValues(name).Observe(duration.Seconds())
	if err != nil {
		m.processFailures.WithLabelValues(name).Inc()
	}
}

// IncRateLimited counts a request rejected by the rate limiter
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// AddSwept counts entries removed by the staging janitor
func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptEntries.Add(float64(n))
}
