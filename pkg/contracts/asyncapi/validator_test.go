package asyncapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/kafka"
)

func event(t *testing.T, eventType string, data map[string]any) *cloudevents.WMSCloudEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &cloudevents.WMSCloudEvent{
		SpecVersion: cloudevents.SpecVersion,
		Type:        eventType,
		Source:      cloudevents.SourceStockEngine,
		ID:          "evt-1",
		Data:        raw,
	}
}

func TestStockEngineValidator_Types(t *testing.T) {
	v, err := NewStockEngineValidator()
	require.NoError(t, err)

	assert.Equal(t, []string{
		cloudevents.StockMoved,
		cloudevents.PickFailedPermanently,
		cloudevents.PickReservationDeferred,
		cloudevents.PickingStarted,
		cloudevents.ReservationCancelled,
		cloudevents.ReservationConsumed,
		cloudevents.RetryConsumeReservation,
	}, v.Types(KindEvent))

	assert.ElementsMatch(t, []string{
		cloudevents.RecordStockMovementRequested,
		cloudevents.PickStockRequested,
		cloudevents.CreateReservationRequested,
		cloudevents.StartPickingRequested,
		cloudevents.CancelReservationRequested,
	}, v.Types(KindCommand))
}

func TestStockEngineValidator_TopicsMatchKafkaRouting(t *testing.T) {
	v, err := NewStockEngineValidator()
	require.NoError(t, err)

	tests := map[string]string{
		cloudevents.StockMoved:                   kafka.Topics.StockEvents,
		cloudevents.ReservationConsumed:          kafka.Topics.StockEvents,
		cloudevents.PickReservationDeferred:      kafka.Topics.PickSagaCommands,
		cloudevents.RetryConsumeReservation:      kafka.Topics.PickSagaCommands,
		cloudevents.PickFailedPermanently:        kafka.Topics.StockAlerts,
		cloudevents.RecordStockMovementRequested: kafka.Topics.StockCommands,
		cloudevents.CancelReservationRequested:   kafka.Topics.StockCommands,
	}
	for eventType, want := range tests {
		got, ok := v.Topic(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, want, got, eventType)
	}

	_, ok := v.Topic("wms.unknown")
	assert.False(t, ok)
}

func TestStockEngineValidator_Commands(t *testing.T) {
	v, err := NewStockEngineValidator()
	require.NoError(t, err)

	movement := map[string]any{
		"commandId":    "cmd-1",
		"warehouseId":  "WH1",
		"sku":          "SKU-001",
		"quantity":     0,
		"toLocation":   "LOC-A",
		"movementType": "Adjust",
	}
	// value checks are left to the engine
	assert.NoError(t, v.ValidateEvent(event(t, cloudevents.RecordStockMovementRequested, movement)))

	movement["quantity"] = "ten"
	assert.Error(t, v.ValidateEvent(event(t, cloudevents.RecordStockMovementRequested, movement)))

	assert.NoError(t, v.ValidateEvent(event(t, cloudevents.StartPickingRequested, map[string]any{"reservationId": "res-1"})))
	assert.Error(t, v.ValidateEvent(event(t, cloudevents.CancelReservationRequested, map[string]any{"reason": "late"})))

	create := map[string]any{
		"reservationId": "res-1",
		"warehouseId":   "WH1",
		"lines":         []any{map[string]any{"location": "LOC-A", "sku": "SKU-001", "quantity": -1}},
	}
	assert.Error(t, v.ValidateEvent(event(t, cloudevents.CreateReservationRequested, create)))
}

func TestStockEngineValidator_StockMoved(t *testing.T) {
	v, err := NewStockEngineValidator()
	require.NoError(t, err)

	valid := map[string]any{
		"movementId":   "mv-1",
		"warehouseId":  "WH1",
		"sku":          "SKU-001",
		"quantity":     10,
		"toLocation":   "LOC-A",
		"movementType": "Receipt",
		"operatorId":   "op-1",
		"timestamp":    "2024-01-01T00:00:00Z",
	}
	assert.NoError(t, v.ValidateEvent(event(t, cloudevents.StockMoved, valid)))

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"zero quantity", func(m map[string]any) { m["quantity"] = 0 }},
		{"unknown movement type", func(m map[string]any) { m["movementType"] = "Adjust" }},
		{"missing sku", func(m map[string]any) { delete(m, "sku") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make(map[string]any, len(valid))
			for k, val := range valid {
				data[k] = val
			}
			tt.mutate(data)
			assert.Error(t, v.ValidateEvent(event(t, cloudevents.StockMoved, data)))
		})
	}
}

func TestStockEngineValidator_LockLinesAreChecked(t *testing.T) {
	v, err := NewStockEngineValidator()
	require.NoError(t, err)

	data := map[string]any{
		"reservationId": "res-1",
		"warehouseId":   "WH1",
		"startedAt":     "2024-01-01T00:00:00Z",
		"lines":         []any{map[string]any{"location": "LOC-A", "sku": "SKU-001", "quantity": 40}},
	}
	assert.NoError(t, v.ValidateEvent(event(t, cloudevents.PickingStarted, data)))

	data["lines"] = []any{map[string]any{"location": "LOC-A", "sku": "SKU-001"}}
	assert.Error(t, v.ValidateEvent(event(t, cloudevents.PickingStarted, data)))
}

func TestEventValidator_Errors(t *testing.T) {
	v, err := NewStockEngineValidator()
	require.NoError(t, err)

	assert.ErrorIs(t, v.ValidateEvent(nil), ErrUnknownType)
	assert.ErrorIs(t, v.ValidateEvent(&cloudevents.WMSCloudEvent{Type: "wms.unknown"}), ErrUnknownType)
	assert.ErrorIs(t, v.ValidateEvent(&cloudevents.WMSCloudEvent{Type: cloudevents.StockMoved}), ErrEmptyPayload)

	ce := event(t, cloudevents.StockMoved, nil)
	ce.Data = []byte("{")
	assert.Error(t, v.ValidateEvent(ce))
}

func TestNewEventValidatorFromBytes(t *testing.T) {
	doc := []byte(`
asyncapi: 3.0.0
channels:
  tests:
    address: wms.test
    messages:
      Sample:
        $ref: '#/components/messages/Sample'
components:
  messages:
    Sample:
      payload:
        $ref: '#/components/schemas/SampleData'
  schemas:
    Untyped:
      type: object
    SampleData:
      x-event-type: wms.test.sample
      type: object
      required: [id]
`)
	v, err := NewEventValidatorFromBytes(doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"wms.test.sample"}, v.Types(KindEvent))
	assert.Empty(t, v.Types(KindCommand))
	assert.False(t, v.HasSchema("Untyped"))

	topic, ok := v.Topic("wms.test.sample")
	require.True(t, ok)
	assert.Equal(t, "wms.test", topic)

	assert.NoError(t, v.ValidateEvent(event(t, "wms.test.sample", map[string]any{"id": "x"})))
	assert.Error(t, v.ValidateEvent(event(t, "wms.test.sample", map[string]any{})))
}

func TestNewEventValidatorFromBytes_RejectsBadDocuments(t *testing.T) {
	_, err := NewEventValidatorFromBytes([]byte("components: ["))
	assert.Error(t, err)

	_, err = NewEventValidatorFromBytes([]byte(`
components:
  schemas:
    A:
      x-event-type: wms.test
      type: object
    B:
      x-event-type: wms.test
      type: object
`))
	assert.Error(t, err)
}
