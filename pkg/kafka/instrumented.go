package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
	"github.com/tabletop-shop/shop-engine/pkg/tracing"
)

// EventPublisher is anything that can publish a CloudEvent to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.ShopCloudEvent) error
}

// InstrumentedProducer adds logging and tracing around a publisher
type InstrumentedProducer struct {
	producer EventPublisher
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer
func NewInstrumentedProducer(producer EventPublisher, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		producer: producer,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes a CloudEvent inside a producer span
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.ShopCloudEvent) error {
	start := time.Now()

	attrs := append(tracing.MessagingSpanAttributes(topic, "publish"),
		attribute.String("messaging.kafka.event_type", event.Type),
		attribute.String("messaging.message_id", event.ID),
	)
	if event.ShopID != "" {
		attrs = append(attrs, attribute.String("shop.id", event.ShopID))
	}
	if event.UserID != "" {
		attrs = append(attrs, attribute.String("basket.user_id", event.UserID))
	}

	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)

	if event.CorrelationID == "" {
		event.CorrelationID = event.ID
	}

	err := p.producer.PublishEvent(ctx, topic, event)
	tracing.EndSpan(span, err)

	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, time.Since(start))
	}
	return err
}

// CircuitBreakerProducer guards a publisher with a circuit breaker
type CircuitBreakerProducer struct {
	producer EventPublisher
	breaker  breaker
}

type breaker interface {
	Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error)
}

// NewCircuitBreakerProducer wraps producer with breaker
func NewCircuitBreakerProducer(producer EventPublisher, breaker breaker) *CircuitBreakerProducer {
	return &CircuitBreakerProducer{producer: producer, breaker: breaker}
}

// PublishEvent publishes a CloudEvent unless the breaker is open
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.ShopCloudEvent) error {
	_, err := p.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.PublishEvent(ctx, topic, event)
	})
	return err
}

// NewProductionProducer builds the full publisher chain used by the outbox
// relay. The returned producer must be closed on shutdown.
func NewProductionProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) (*CircuitBreakerProducer, *Producer) {
	base := NewProducer(config)
	instrumented := NewInstrumentedProducer(base, logger)
	cb := newKafkaBreaker(logger, m)
	return NewCircuitBreakerProducer(instrumented, cb), base
}
