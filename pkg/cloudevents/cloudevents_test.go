package cloudevents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/pkg/logging"
)

func TestCreateEvent_CopiesContextIDs(t *testing.T) {
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-ctx")
	ctx = logging.ContextWithCommandID(ctx, "cmd-1")

	e, err := NewEventFactory(SourceStockEngine).CreateEvent(ctx, StockMoved, "WH1:LOC-A:SKU-1", map[string]int{"quantity": 5})
	require.NoError(t, err)

	require.NoError(t, e.Validate())
	assert.Equal(t, "corr-ctx", e.CorrelationID)
	assert.Equal(t, "cmd-1", e.CommandID)
	assert.Equal(t, "WH1:LOC-A:SKU-1", e.Subject)
	assert.NotEmpty(t, e.ID)

	var data map[string]int
	require.NoError(t, e.DecodeData(&data))
	assert.Equal(t, 5, data["quantity"])
}

func TestCreateEvent_Options(t *testing.T) {
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-ctx")
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	e, err := NewEventFactory(SourceStockEngine).CreateEvent(ctx, PickReservationDeferred, "corr-1", struct{}{},
		WithCorrelationID("corr-1"), WithWarehouse("WH1"), OccurredAt(at))
	require.NoError(t, err)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "WH1", e.WarehouseID)
	assert.Equal(t, at, e.Time)

	e, err = NewEventFactory(SourceStockEngine).CreateEvent(ctx, PickReservationDeferred, "corr-1", struct{}{},
		WithCorrelationID(""), OccurredAt(time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, "corr-ctx", e.CorrelationID)
	assert.False(t, e.Time.IsZero())
}

func TestCreateEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEventFactory(SourceStockEngine).CreateEvent(context.Background(), StockMoved, "", make(chan int))
	assert.Error(t, err)
}

func TestHeaders_RoundTrip(t *testing.T) {
	e := &WMSCloudEvent{
		SpecVersion:   SpecVersion,
		ID:            "evt-1",
		Type:          StockMoved,
		Source:        SourceStockEngine,
		CorrelationID: "corr-1",
		WarehouseID:   "WH1",
		TraceParent:   "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	headers := e.Headers()
	assert.NotContains(t, headers, HeaderPrefix+ExtCommandID)
	assert.NotContains(t, headers, HeaderPrefix+"subject")

	var copied WMSCloudEvent
	for k, v := range headers {
		copied.ApplyHeader(k, v)
	}
	assert.Equal(t, "corr-1", copied.CorrelationID)
	assert.Equal(t, "WH1", copied.WarehouseID)
	assert.Equal(t, e.TraceParent, copied.TraceParent)
}

func TestValidate(t *testing.T) {
	valid := WMSCloudEvent{SpecVersion: SpecVersion, ID: "1", Type: StockMoved, Source: SourceStockEngine}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*WMSCloudEvent){
		"specversion": func(e *WMSCloudEvent) { e.SpecVersion = "0.3" },
		"id":          func(e *WMSCloudEvent) { e.ID = "" },
		"type":        func(e *WMSCloudEvent) { e.Type = "" },
		"source":      func(e *WMSCloudEvent) { e.Source = "" },
	} {
		e := valid
		mutate(&e)
		assert.Error(t, e.Validate(), name)
	}
}

func TestDecodeData_Empty(t *testing.T) {
	assert.Error(t, (&WMSCloudEvent{ID: "1", Type: StockMoved}).DecodeData(&struct{}{}))
}
