package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wms-platform/stock-engine/pkg/cloudevents"
)

// DefaultMaxAttempts is how many failed publishes a record gets before it is parked
const DefaultMaxAttempts = 10

// Status is the shipping state of a record
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"

	// StatusParked records ran out of attempts and wait for an operator
	StatusParked Status = "parked"
)

// Record is a CloudEvent written in the same transaction as the state change that
// produced it. Records sharing a Key are shipped in creation order.
type Record struct {
	// ID is the CloudEvent id, so writing the same envelope twice is rejected
	ID            string          `bson:"_id" json:"id"`
	Topic         string          `bson:"topic" json:"topic"`
	Key           string          `bson:"key" json:"key"`
	EventType     string          `bson:"eventType" json:"eventType"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	Envelope      json.RawMessage `bson:"envelope" json:"envelope"`

	Status      Status     `bson:"status" json:"status"`
	Attempts    int        `bson:"attempts" json:"attempts"`
	MaxAttempts int        `bson:"maxAttempts" json:"maxAttempts"`
	LastError   string     `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	PublishedAt *time.Time `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
}

// NewRecord stores ce for topic, keyed by the envelope subject
func NewRecord(topic, aggregateType string, ce *cloudevents.WMSCloudEvent) (*Record, error) {
	envelope, err := json.Marshal(ce)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", ce.Type, err)
	}

	return &Record{
		ID:            ce.ID,
		Topic:         topic,
		Key:           ce.Subject,
		EventType:     ce.Type,
		AggregateType: aggregateType,
		Envelope:      envelope,
		Status:        StatusPending,
		MaxAttempts:   DefaultMaxAttempts,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CloudEvent decodes the stored envelope
func (r *Record) CloudEvent() (*cloudevents.WMSCloudEvent, error) {
	var ce cloudevents.WMSCloudEvent
	if err := json.Unmarshal(r.Envelope, &ce); err != nil {
		return nil, err
	}
	return &ce, nil
}

// LastAttempt reports whether one more failure parks the record
func (r *Record) LastAttempt() bool {
	return r.Attempts+1 >= r.MaxAttempts
}
