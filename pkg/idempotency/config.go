package idempotency

import (
	"time"
)

const (
	// DefaultRetentionPeriod is the default retention period for claims and processed messages
	DefaultRetentionPeriod = 24 * time.Hour
)

// ClaimConfig configures a command claim store
type ClaimConfig struct {
	// LeaseTimeout is the age after which an InProgress claim may be taken over by a duplicate.
	// Zero, the default, never takes over a claim. A superseded execution can no longer
	// settle the claim, but its side effects are not undone.
	LeaseTimeout time.Duration

	// RetentionPeriod is how long claims are kept before the TTL index removes them
	RetentionPeriod time.Duration
}

// DefaultClaimConfig returns the default claim store configuration
func DefaultClaimConfig() *ClaimConfig {
	return &ClaimConfig{
		RetentionPeriod: DefaultRetentionPeriod,
	}
}

func (c *ClaimConfig) withDefaults() *ClaimConfig {
	if c == nil {
		return DefaultClaimConfig()
	}
	out := *c
	if out.RetentionPeriod <= 0 {
		out.RetentionPeriod = DefaultRetentionPeriod
	}
	return &out
}

// ConsumerConfig holds configuration for Kafka consumer message deduplication
type ConsumerConfig struct {
	ServiceName   string
	Topic         string
	ConsumerGroup string

	Repository MessageRepository

	// RetentionPeriod is how long processed message IDs are retained
	RetentionPeriod time.Duration
}

// DefaultConsumerConfig returns a default consumer configuration
func DefaultConsumerConfig(serviceName, topic, consumerGroup string, repository MessageRepository) *ConsumerConfig {
	return &ConsumerConfig{
		ServiceName:     serviceName,
		Topic:           topic,
		ConsumerGroup:   consumerGroup,
		Repository:      repository,
		RetentionPeriod: DefaultRetentionPeriod,
	}
}
