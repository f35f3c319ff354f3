package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all shop engine metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Temporal metrics
	WorkflowsStarted    *prometheus.CounterVec
	ActivitiesCompleted *prometheus.CounterVec
	ActivityDuration    *prometheus.HistogramVec

	// Business metrics
	StockChanges     *prometheus.CounterVec
	ItemsGenerated   *prometheus.CounterVec
	BasketOperations *prometheus.CounterVec
	ReceiptsIssued   *prometheus.CounterVec
	SettlementCopper *prometheus.HistogramVec
	LedgerEntries    *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
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
		Namespace:   "shop",
	}
}

// New creates a new Metrics instance backed by its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	ns := config.Namespace
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, append([]string{"service"}, labels...))
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: name, Help: help, Buckets: buckets}, append([]string{"service"}, labels...))
	}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,

		HTTPRequestsTotal:   counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		HTTPRequestDuration: histogram("http_request_duration_seconds", "HTTP request duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}, "method", "path"),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		}),

		KafkaEventsPublished: counter("kafka_events_published_total", "Total number of Kafka events published", "topic", "event_type", "status"),
		KafkaPublishDuration: histogram("kafka_publish_duration_seconds", "Kafka publish duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}, "topic"),

		MongoDBOperations:        counter("mongodb_operations_total", "Total number of MongoDB operations", "collection", "operation", "status"),
		MongoDBOperationDuration: histogram("mongodb_operation_duration_seconds", "MongoDB operation duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}, "collection", "operation"),

		WorkflowsStarted:    counter("temporal_workflows_started_total", "Total number of Temporal workflows started", "workflow_type"),
		ActivitiesCompleted: counter("temporal_activities_completed_total", "Total number of Temporal activities completed", "activity_type", "status"),
		ActivityDuration:    histogram("temporal_activity_duration_seconds", "Temporal activity duration in seconds", []float64{.1, .5, 1, 5, 10, 30, 60}, "activity_type"),

		StockChanges:     counter("stock_changes_total", "Stock mutations applied to shop inventories", "operation"),
		ItemsGenerated:   counter("stock_items_generated_total", "Items produced by random stock generation", "rarity"),
		BasketOperations: counter("basket_operations_total", "Basket operations by basket and outcome", "basket", "operation", "status"),
		ReceiptsIssued:   counter("receipts_issued_total", "Receipts persisted by transaction direction", "direction"),
		SettlementCopper: histogram("settlement_net_copper", "Absolute net amount of settled transactions in copper", prometheus.ExponentialBuckets(10, 10, 7), "direction"),
		LedgerEntries:    counter("ledger_entries_total", "Ledger entries appended", "type"),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"service", "name"}),
		CircuitBreakerTrips: counter("circuit_breaker_trips_total", "Total number of circuit breaker trips", "name"),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.WorkflowsStarted,
		m.ActivitiesCompleted,
		m.ActivityDuration,
		m.StockChanges,
		m.ItemsGenerated,
		m.BasketOperations,
		m.ReceiptsIssued,
		m.SettlementCopper,
		m.LedgerEntries,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, statusLabel(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordWorkflowStarted records a workflow start
func (m *Metrics) RecordWorkflowStarted(workflowType string) {
	m.WorkflowsStarted.WithLabelValues(m.serviceName, workflowType).Inc()
}

// RecordActivityCompleted records an activity completion
func (m *Metrics) RecordActivityCompleted(activityType string, success bool, duration time.Duration) {
	m.ActivitiesCompleted.WithLabelValues(m.serviceName, activityType, statusLabel(success)).Inc()
	m.ActivityDuration.WithLabelValues(m.serviceName, activityType).Observe(duration.Seconds())
}

// RecordStockChange records a stock mutation such as add, remove or restock
func (m *Metrics) RecordStockChange(operation string, count int) {
	if count <= 0 {
		return
	}
	m.StockChanges.WithLabelValues(m.serviceName, operation).Add(float64(count))
}

// RecordItemGenerated records one generated stock entry
func (m *Metrics) RecordItemGenerated(rarity string) {
	m.ItemsGenerated.WithLabelValues(m.serviceName, rarity).Inc()
}

// RecordBasketOperation records a basket operation outcome
func (m *Metrics) RecordBasketOperation(basket, operation string, success bool) {
	m.BasketOperations.WithLabelValues(m.serviceName, basket, operation, statusLabel(success)).Inc()
}

// RecordReceiptIssued records a persisted receipt
func (m *Metrics) RecordReceiptIssued(direction string) {
	m.ReceiptsIssued.WithLabelValues(m.serviceName, direction).Inc()
}

// RecordSettlement records the net copper of a settled transaction
func (m *Metrics) RecordSettlement(direction string, netCopper int) {
	if netCopper < 0 {
		netCopper = -netCopper
	}
	m.SettlementCopper.WithLabelValues(m.serviceName, direction).Observe(float64(netCopper))
}

// RecordLedgerEntry records an appended ledger entry
func (m *Metrics) RecordLedgerEntry(entryType string) {
	m.LedgerEntries.WithLabelValues(m.serviceName, entryType).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state gauge
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
