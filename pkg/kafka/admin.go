package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// EnsureTopics creates the topics in wanted that the cluster does not have yet and
// returns their names. Existing topics are left as they are, even when their
// settings differ.
func EnsureTopics(ctx context.Context, brokers []string, wanted []TopicConfig) ([]string, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("read cluster metadata: %w", err)
	}
	missing := missingTopics(partitions, wanted)
	if len(missing) == 0 {
		return nil, nil
	}

	// topics can only be created through the controller
	controller, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("find controller: %w", err)
	}
	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return nil, fmt.Errorf("dial controller: %w", err)
	}
	defer ctrl.Close()

	if err := ctrl.CreateTopics(missing...); err != nil {
		return nil, fmt.Errorf("create topics: %w", err)
	}

	created := make([]string, len(missing))
	for i, t := range missing {
		created[i] = t.Topic
	}
	return created, nil
}

func missingTopics(existing []kafka.Partition, wanted []TopicConfig) []kafka.TopicConfig {
	present := make(map[string]bool)
	for _, p := range existing {
		present[p.Topic] = true
	}

	var missing []kafka.TopicConfig
	for _, t := range wanted {
		if present[t.Name] {
			continue
		}
		missing = append(missing, kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(t.RetentionMs, 10)},
			},
		})
	}
	return missing
}
