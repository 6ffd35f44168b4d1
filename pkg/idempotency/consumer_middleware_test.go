package idempotency

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/pkg/cloudevents"
)

func TestDeduplicatingHandler(t *testing.T) {
	repo := NewMemoryMessageRepository()
	cfg := DefaultConsumerConfig("stock-engine", "wms.stock.events", "stock-projection", repo)
	metrics := NewMetrics(prometheus.NewRegistry())

	var calls int
	failNext := false
	handler := DeduplicatingHandler(cfg, metrics, nil, func(context.Context, *cloudevents.WMSCloudEvent) error {
		calls++
		if failNext {
			failNext = false
			return errors.New("transient")
		}
		return nil
	})

	event := &cloudevents.WMSCloudEvent{ID: "evt-1", Type: cloudevents.StockMoved}

	t.Run("first delivery is processed", func(t *testing.T) {
		require.NoError(t, handler(context.Background(), event))
		assert.Equal(t, 1, calls)
	})

	t.Run("redelivery is skipped", func(t *testing.T) {
		require.NoError(t, handler(context.Background(), event))
		assert.Equal(t, 1, calls)
	})

	t.Run("failed message stays eligible", func(t *testing.T) {
		other := &cloudevents.WMSCloudEvent{ID: "evt-2", Type: cloudevents.StockMoved}
		failNext = true
		require.Error(t, handler(context.Background(), other))
		require.NoError(t, handler(context.Background(), other))
		assert.Equal(t, 3, calls)

		processed, err := repo.IsProcessed(context.Background(), "evt-2", cfg.Topic, cfg.ConsumerGroup)
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("outcomes are counted", func(t *testing.T) {
		count := func(outcome DeliveryOutcome) float64 {
			return testutil.ToFloat64(metrics.deliveries.WithLabelValues("stock-engine", cfg.Topic, cloudevents.StockMoved, string(outcome)))
		}
		assert.Equal(t, 3.0, count(DeliveryNew))
		assert.Equal(t, 1.0, count(DeliveryDuplicate))
		assert.Zero(t, count(DeliveryError))
	})

	t.Run("other consumer group is independent", func(t *testing.T) {
		otherCfg := DefaultConsumerConfig("stock-engine", "wms.stock.events", "pick-saga", repo)
		var otherCalls int
		h := DeduplicatingHandler(otherCfg, nil, nil, func(context.Context, *cloudevents.WMSCloudEvent) error {
			otherCalls++
			return nil
		})
		require.NoError(t, h(context.Background(), event))
		assert.Equal(t, 1, otherCalls)
	})
}
