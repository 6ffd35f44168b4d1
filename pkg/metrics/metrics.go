package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the stock engine metrics. All Record methods are safe on a nil receiver.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// Command metrics
	CommandsHandled *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Ledger metrics
	LedgerAppends         *prometheus.CounterVec
	ConcurrencyConflicts  *prometheus.CounterVec
	ValidationRejections  *prometheus.CounterVec
	ConflictRetryExhausts *prometheus.CounterVec

	// Pick saga metrics
	DeferredConsumptions *prometheus.CounterVec
	SagaTransitions      *prometheus.CounterVec
	SagaRetriesScheduled *prometheus.CounterVec
	SagaPermanentFailure *prometheus.CounterVec

	// Projection metrics
	ProjectionUpdates *prometheus.CounterVec

	// Outbox metrics
	OutboxPublished *prometheus.CounterVec
	OutboxFailed    *prometheus.CounterVec
	OutboxParked    *prometheus.CounterVec

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Ops HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates a new Metrics instance backed by its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, append([]string{"service"}, labels...))
	}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,

		CommandsHandled: counter("stock_commands_handled_total", "Commands handled by type and outcome", "command_type", "outcome"),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "stock_command_duration_seconds",
			Help:      "Command handling duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"service", "command_type"}),

		LedgerAppends:         counter("stock_ledger_appends_total", "Events appended to ledger streams", "movement_type"),
		ConcurrencyConflicts:  counter("stock_ledger_concurrency_conflicts_total", "Expected version mismatches on append", "movement_type"),
		ValidationRejections:  counter("stock_ledger_validation_rejections_total", "Movements rejected by ledger validation", "reason"),
		ConflictRetryExhausts: counter("stock_ledger_conflict_retries_exhausted_total", "Movements that ran out of concurrency retries", "movement_type"),

		DeferredConsumptions: counter("stock_pick_deferred_consumptions_total", "Reservation consumptions deferred to the pick saga"),
		SagaTransitions:      counter("stock_pick_saga_transitions_total", "Pick saga state transitions", "from", "to"),
		SagaRetriesScheduled: counter("stock_pick_saga_retries_scheduled_total", "Durable consumption retries scheduled", "scheduler"),
		SagaPermanentFailure: counter("stock_pick_saga_failed_permanently_total", "Pick sagas that exhausted their retries"),

		ProjectionUpdates: counter("stock_projection_updates_total", "Available stock view updates", "event_type"),

		OutboxPublished: counter("outbox_events_published_total", "Outbox events shipped to the broker", "event_type"),
		OutboxFailed:    counter("outbox_events_failed_total", "Outbox publish attempts that failed", "event_type"),
		OutboxParked:    counter("outbox_events_parked_total", "Outbox records parked after exhausting their attempts", "event_type"),

		KafkaEventsPublished: counter("kafka_events_published_total", "Total number of Kafka events published", "topic", "event_type", "status"),
		KafkaEventsConsumed:  counter("kafka_events_consumed_total", "Total number of Kafka events consumed", "topic", "event_type", "status"),
		KafkaPublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"service", "topic"}),

		MongoDBOperations: counter("mongodb_operations_total", "Total number of MongoDB operations", "collection", "operation", "status"),
		MongoDBOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"service", "collection", "operation"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"service", "name"}),

		HTTPRequests: counter("http_requests_total", "HTTP requests served", "method", "path", "status"),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
	}

	registry.MustRegister(
		m.CommandsHandled, m.CommandDuration,
		m.LedgerAppends, m.ConcurrencyConflicts, m.ValidationRejections, m.ConflictRetryExhausts,
		m.DeferredConsumptions, m.SagaTransitions, m.SagaRetriesScheduled, m.SagaPermanentFailure,
		m.ProjectionUpdates,
		m.OutboxPublished, m.OutboxFailed, m.OutboxParked,
		m.KafkaEventsPublished, m.KafkaEventsConsumed, m.KafkaPublishDuration,
		m.MongoDBOperations, m.MongoDBOperationDuration,
		m.CircuitBreakerState,
		m.HTTPRequests, m.HTTPRequestDuration,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordCommand records a handled command and how long it took
func (m *Metrics) RecordCommand(commandType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CommandsHandled.WithLabelValues(m.serviceName, commandType, outcome).Inc()
	m.CommandDuration.WithLabelValues(m.serviceName, commandType).Observe(duration.Seconds())
}

// RecordLedgerAppend records a successful append
func (m *Metrics) RecordLedgerAppend(movementType string) {
	if m == nil {
		return
	}
	m.LedgerAppends.WithLabelValues(m.serviceName, movementType).Inc()
}

// RecordConcurrencyConflict records an expected version mismatch
func (m *Metrics) RecordConcurrencyConflict(movementType string) {
	if m == nil {
		return
	}
	m.ConcurrencyConflicts.WithLabelValues(m.serviceName, movementType).Inc()
}

// RecordConflictRetriesExhausted records a movement that gave up after MaxRetries
func (m *Metrics) RecordConflictRetriesExhausted(movementType string) {
	if m == nil {
		return
	}
	m.ConflictRetryExhausts.WithLabelValues(m.serviceName, movementType).Inc()
}

// RecordValidationRejection records a movement rejected by the ledger
func (m *Metrics) RecordValidationRejection(reason string) {
	if m == nil {
		return
	}
	m.ValidationRejections.WithLabelValues(m.serviceName, reason).Inc()
}

// RecordDeferredConsumption records a pick whose reservation consumption was deferred
func (m *Metrics) RecordDeferredConsumption() {
	if m == nil {
		return
	}
	m.DeferredConsumptions.WithLabelValues(m.serviceName).Inc()
}

// RecordSagaTransition records a pick saga state change
func (m *Metrics) RecordSagaTransition(from, to string) {
	if m == nil {
		return
	}
	m.SagaTransitions.WithLabelValues(m.serviceName, from, to).Inc()
}

// RecordSagaRetryScheduled records a durable retry handed to a scheduler
func (m *Metrics) RecordSagaRetryScheduled(scheduler string) {
	if m == nil {
		return
	}
	m.SagaRetriesScheduled.WithLabelValues(m.serviceName, scheduler).Inc()
}

// RecordSagaFailedPermanently records a saga reaching Failed
func (m *Metrics) RecordSagaFailedPermanently() {
	if m == nil {
		return
	}
	m.SagaPermanentFailure.WithLabelValues(m.serviceName).Inc()
}

// RecordProjectionUpdate records a view update
func (m *Metrics) RecordProjectionUpdate(eventType string) {
	if m == nil {
		return
	}
	m.ProjectionUpdates.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordOutboxPublish records the outcome of shipping one outbox event
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	if m == nil {
		return
	}
	if success {
		m.OutboxPublished.WithLabelValues(m.serviceName, eventType).Inc()
		return
	}
	m.OutboxFailed.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordOutboxParked counts a record taken out of the shipping queue
func (m *Metrics) RecordOutboxParked(eventType string) {
	if m == nil {
		return
	}
	m.OutboxParked.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a Kafka consume event
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	if m == nil {
		return
	}
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state gauge
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordHTTPRequest records a served HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(m.serviceName, method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}
