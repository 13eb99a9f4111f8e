package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricWebhookEventsTotal       = "webhook_events_total"
	MetricWebhookSignatureFailures = "webhook_signature_failures_total"
)

// Outcome labels for webhook event processing.
const (
	OutcomeApplied    = "applied"
	OutcomeRegression = "regression"
	OutcomeReplay     = "replay"
	OutcomeNoMapping  = "no_mapping"
	OutcomeFailed     = "failed"
	OutcomeError      = "error"
)

// Metrics contains Prometheus metrics for webhook processing.
// All operations are thread-safe.
type Metrics struct {
	eventsTotal       *prometheus.CounterVec
	signatureFailures prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricWebhookEventsTotal,
				Help: "Total number of processed webhook events by type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		signatureFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricWebhookSignatureFailures,
				Help: "Total number of webhook deliveries rejected for bad signatures",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(registry *prometheus.Registry) error {
	if err := registry.Register(m.eventsTotal); err != nil {
		return err
	}
	return registry.Register(m.signatureFailures)
}

// RecordEvent increments the event counter for the given type and outcome.
func (m *Metrics) RecordEvent(eventType, outcome string) {
	m.eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordSignatureFailure increments the signature rejection counter.
func (m *Metrics) RecordSignatureFailure() {
	m.signatureFailures.Inc()
}
