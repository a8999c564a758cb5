// Package metrics holds the Prometheus collectors for the distribution
// lifecycle: orchestration, worker execution, webhooks, and retries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all distribution lifecycle metrics.
type Metrics struct {
	DistributionsCreated *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	WebhookEvents        *prometheus.CounterVec
	RetriesTotal         prometheus.Counter
	RetriesExhausted     prometheus.Counter
	AdapterLatency       *prometheus.HistogramVec
	IsrcIssued           prometheus.Counter
}

// New creates the distribution metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates the distribution metrics on a caller-supplied registry.
// Tests use this to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DistributionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tunecast_distributions_created_total",
			Help: "Distribution rows created, by platform",
		}, []string{"platform"}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tunecast_distribution_transitions_total",
			Help: "Status transitions applied, by target status",
		}, []string{"to_status"}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tunecast_webhook_events_total",
			Help: "Inbound webhook events, by platform and outcome",
		}, []string{"platform", "outcome"}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tunecast_distribution_retries_total",
			Help: "Retry attempts accepted by the retry manager",
		}),
		RetriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tunecast_distribution_retries_exhausted_total",
			Help: "Retry attempts rejected because the budget was spent",
		}),
		AdapterLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tunecast_platform_adapter_duration_seconds",
			Help:    "Platform adapter call latency, by platform",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
		IsrcIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "tunecast_isrc_issued_total",
			Help: "Registry codes issued",
		}),
	}
}

// ObserveAdapterCall records one adapter round trip.
func (m *Metrics) ObserveAdapterCall(platform string, elapsed time.Duration) {
	m.AdapterLatency.WithLabelValues(platform).Observe(elapsed.Seconds())
}
