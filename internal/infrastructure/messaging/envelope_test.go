package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/outbox"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, kafka.Topics.StockEvents, TopicFor(cloudevents.StockMoved))
	assert.Equal(t, kafka.Topics.StockEvents, TopicFor(cloudevents.ReservationCancelled))
	assert.Equal(t, kafka.Topics.PickSagaCommands, TopicFor(cloudevents.PickReservationDeferred))
	assert.Equal(t, kafka.Topics.PickSagaCommands, TopicFor(cloudevents.RetryConsumeReservation))
	assert.Equal(t, kafka.Topics.StockAlerts, TopicFor(cloudevents.PickFailedPermanently))
}

func TestEnvelopeFactory_ToOutbox(t *testing.T) {
	deferred := &domain.ConsumePickReservationDeferred{
		CorrelationID: "corr-1",
		ReservationID: "res-1",
		MovementID:    "mv-1",
		WarehouseID:   "WH1",
		SKU:           "SKU-1",
		Quantity:      5,
	}

	records, err := NewEnvelopeFactory().ToOutbox(context.Background(), receipt(), deferred)
	require.NoError(t, err)
	require.Len(t, records, 2)

	moved := records[0]
	assert.Equal(t, kafka.Topics.StockEvents, moved.Topic)
	assert.Equal(t, receipt().AggregateID(), moved.Key)
	assert.Equal(t, "StockLedger", moved.AggregateType)
	assert.Equal(t, outbox.StatusPending, moved.Status)

	saga := records[1]
	assert.Equal(t, kafka.Topics.PickSagaCommands, saga.Topic)
	assert.Equal(t, "corr-1", saga.Key)
	assert.Equal(t, "PickStockSaga", saga.AggregateType)

	ce, err := saga.CloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "corr-1", ce.CorrelationID)
	assert.Equal(t, "WH1", ce.WarehouseID)
	assert.Equal(t, saga.ID, ce.ID)
}

func TestDecode(t *testing.T) {
	ce, err := NewEnvelopeFactory().Wrap(context.Background(), receipt())
	require.NoError(t, err)

	event, err := Decode(ce)
	require.NoError(t, err)
	assert.Equal(t, receipt(), event)

	ce.Type = "wms.stock.unknown"
	_, err = Decode(ce)
	assert.Error(t, err)
}
