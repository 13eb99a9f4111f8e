package billing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricBillingCyclesTotal    = "billing_cycles_total"
	MetricBillingCycleDuration  = "billing_cycle_duration_seconds"
	MetricChargeAttemptsTotal   = "charge_attempts_total"
)

// Status constants for charge attempt labeling.
const (
	AttemptSettled  = "settled"
	AttemptDeclined = "declined"
)

// Metrics contains Prometheus metrics for billing operations.
// All operations are thread-safe.
type Metrics struct {
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	chargeAttempts *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBillingCyclesTotal,
				Help: "Total number of billing cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricBillingCycleDuration,
				Help:    "Histogram of billing cycle duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
		chargeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricChargeAttemptsTotal,
				Help: "Total number of per-instrument charge attempts by status",
			},
			[]string{"status"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{m.cyclesTotal, m.cycleDuration, m.chargeAttempts}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordCycle records the outcome and duration of one billing cycle.
func (m *Metrics) RecordCycle(outcome string, duration time.Duration) {
	m.cyclesTotal.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

// RecordAttempt records one per-instrument charge attempt.
func (m *Metrics) RecordAttempt(settled bool) {
	status := AttemptDeclined
	if settled {
		status = AttemptSettled
	}
	m.chargeAttempts.WithLabelValues(status).Inc()
}
