package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingTopics_SkipsExisting(t *testing.T) {
	existing := []kafka.Partition{
		{Topic: Topics.StockEvents, ID: 0},
		{Topic: Topics.StockEvents, ID: 1},
		{Topic: "unrelated", ID: 0},
	}

	missing := missingTopics(existing, DefaultTopicConfigs())

	var names []string
	for _, m := range missing {
		names = append(names, m.Topic)
	}
	assert.ElementsMatch(t, []string{Topics.StockCommands, Topics.PickSagaCommands, Topics.StockAlerts}, names)
}

func TestMissingTopics_CarriesRetention(t *testing.T) {
	missing := missingTopics(nil, []TopicConfig{{Name: Topics.StockCommands, Partitions: 12, ReplicationFactor: 1, RetentionMs: 3 * day}})

	require.Len(t, missing, 1)
	assert.Equal(t, 12, missing[0].NumPartitions)
	assert.Equal(t, 1, missing[0].ReplicationFactor)
	assert.Equal(t, []kafka.ConfigEntry{{ConfigName: "retention.ms", ConfigValue: "259200000"}}, missing[0].ConfigEntries)
}
