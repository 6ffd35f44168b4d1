package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DeliveryOutcome labels what deduplication decided for one message
type DeliveryOutcome string

const (
	DeliveryNew       DeliveryOutcome = "new"
	DeliveryDuplicate DeliveryOutcome = "duplicate"
	DeliveryError     DeliveryOutcome = "error"
)

// Metrics covers command claims and message deduplication. Every method is a no-op on nil.
type Metrics struct {
	claims          *prometheus.CounterVec
	claimLatency    *prometheus.HistogramVec
	handlerFailures *prometheus.CounterVec
	storageErrors   *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
}

// NewMetrics registers the idempotency collectors on registry, or on the default registerer when nil
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)

	return &Metrics{
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "command_claims_total",
			Help: "Command claim attempts by outcome",
		}, []string{"service", "command_type", "outcome"}),
		claimLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "command_claim_duration_seconds",
			Help:    "Latency of claiming a command id",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"service", "command_type"}),
		handlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "command_claim_handler_failures_total",
			Help: "Claimed command executions that returned an error or panicked",
		}, []string{"service", "command_type", "kind"}),
		storageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "command_claim_storage_errors_total",
			Help: "Claim store operations that failed",
		}, []string{"service", "operation"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "message_deliveries_total",
			Help: "Consumed messages by deduplication outcome",
		}, []string{"service", "topic", "event_type", "outcome"}),
	}
}

// RecordClaim records a TryStart outcome and its latency
func (m *Metrics) RecordClaim(service, commandType string, outcome ClaimOutcome, seconds float64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(service, commandType, outcome.String()).Inc()
	m.claimLatency.WithLabelValues(service, commandType).Observe(seconds)
}

// RecordHandlerFailure counts a claimed execution that failed ("error") or panicked ("panic")
func (m *Metrics) RecordHandlerFailure(service, commandType, kind string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(service, commandType, kind).Inc()
}

// RecordStorageError counts a failed claim store operation
func (m *Metrics) RecordStorageError(service, operation string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(service, operation).Inc()
}

// RecordDelivery counts one consumed message
func (m *Metrics) RecordDelivery(service, topic, eventType string, outcome DeliveryOutcome) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(service, topic, eventType, string(outcome)).Inc()
}
