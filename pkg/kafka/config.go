package kafka

import (
	"os"
	"strings"
	"time"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers  []string
	ClientID string

	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // -1 waits for all in-sync replicas
}

// DefaultConfig returns a Config read from KAFKA_BROKERS with producer defaults
func DefaultConfig() *Config {
	brokers := []string{"localhost:9092"}
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return &Config{
		Brokers:      brokers,
		ClientID:     "shop-engine",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
	}
}

// Topics contains the shop engine topic names
var Topics = struct {
	ShopStock    string
	ShopBaskets  string
	ShopReceipts string
}{
	ShopStock:    "shop.stock.events",
	ShopBaskets:  "shop.baskets.events",
	ShopReceipts: "shop.receipts.events",
}
