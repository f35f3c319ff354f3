package kafka

import (
	"time"

	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
	"github.com/tabletop-shop/shop-engine/pkg/resilience"
)

func newKafkaBreaker(logger *logging.Logger, m *metrics.Metrics) *resilience.CircuitBreaker {
	config := &resilience.CircuitBreakerConfig{
		Name:                  "kafka-producer",
		MaxRequests:           5,
		Interval:              time.Minute,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}
	return resilience.NewCircuitBreaker(config, logger.Logger, m)
}
