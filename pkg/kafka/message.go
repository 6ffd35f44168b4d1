package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
)

// encodeEvent builds the Kafka message for event. The CloudEvent subject becomes
// the message key, so every event of one stream lands on the same partition.
func encodeEvent(event *cloudevents.WMSCloudEvent) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event %s: %w", event.Type, event.ID, err)
	}

	extensions := event.Headers()
	headers := make([]kafka.Header, 0, len(extensions))
	for name, value := range extensions {
		headers = append(headers, kafka.Header{Key: name, Value: []byte(value)})
	}

	return kafka.Message{
		Key:     []byte(event.Subject),
		Value:   body,
		Headers: headers,
		Time:    event.Time,
	}, nil
}

// decodeEvent reads a CloudEvent from msg. Header values win over the body's
// extension attributes.
func decodeEvent(msg kafka.Message) (*cloudevents.WMSCloudEvent, error) {
	var event cloudevents.WMSCloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("decode message at offset %d: %w", msg.Offset, err)
	}
	for _, h := range msg.Headers {
		event.ApplyHeader(h.Key, string(h.Value))
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
