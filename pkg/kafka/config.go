package kafka

import (
	"time"

	"github.com/wms-platform/stock-engine/pkg/resilience"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	ClientID      string   `yaml:"clientId"`

	// Producer settings
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"` // 0: no ack, 1: leader ack, -1: all replicas ack

	// Consumer settings
	MinBytes int           `yaml:"minBytes"`
	MaxBytes int           `yaml:"maxBytes"`
	MaxWait  time.Duration `yaml:"maxWait"`

	// A message whose handler fails is retried in place after these delays.
	// Later messages of the partition wait behind it.
	RedeliveryInitialDelay time.Duration `yaml:"redeliveryInitialDelay"`
	RedeliveryMaxDelay     time.Duration `yaml:"redeliveryMaxDelay"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "stock-engine",
		ClientID:      "stock-engine",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,

		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,

		RedeliveryInitialDelay: 200 * time.Millisecond,
		RedeliveryMaxDelay:     30 * time.Second,
	}
}

func (c *Config) redelivery() resilience.Backoff {
	b := resilience.Backoff{InitialDelay: c.RedeliveryInitialDelay, MaxDelay: c.RedeliveryMaxDelay, Factor: 2}
	if b.Validate() != nil {
		return resilience.Backoff{InitialDelay: 200 * time.Millisecond, MaxDelay: 30 * time.Second, Factor: 2}
	}
	return b
}

// Topics contains the stock engine topic names
var Topics = struct {
	// Inbound movement and pick commands
	StockCommands string

	// Ledger and reservation events consumed by the projection
	StockEvents string

	// Pick saga plumbing
	PickSagaCommands string

	// Operator facing failures
	StockAlerts string
}{
	StockCommands:    "wms.stock.commands",
	StockEvents:      "wms.stock.events",
	PickSagaCommands: "wms.stock.pick-saga",
	StockAlerts:      "wms.stock.alerts",
}

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

const day = int64(24 * 60 * 60 * 1000)

// DefaultTopicConfigs returns default configurations for stock engine topics
func DefaultTopicConfigs() []TopicConfig {
	return []TopicConfig{
		{Name: Topics.StockCommands, Partitions: 12, ReplicationFactor: 3, RetentionMs: 3 * day},
		{Name: Topics.StockEvents, Partitions: 12, ReplicationFactor: 3, RetentionMs: 7 * day},
		{Name: Topics.PickSagaCommands, Partitions: 6, ReplicationFactor: 3, RetentionMs: 7 * day},
		{Name: Topics.StockAlerts, Partitions: 3, ReplicationFactor: 3, RetentionMs: 30 * day},
	}
}
