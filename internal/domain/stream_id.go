package domain

import (
	"fmt"
	"strings"
)

// StreamPrefix is the literal first segment of every ledger stream id. Persisted; do not change.
const StreamPrefix = "stock-ledger"

const streamSeparator = ":"

// StreamKey identifies one ledger partition
type StreamKey struct {
	WarehouseID string
	Location    string
	SKU         string
}

// NewStreamKey validates the three partition components
func NewStreamKey(warehouseID, location, sku string) (StreamKey, error) {
	for _, arg := range []struct{ name, value string }{
		{"warehouseId", warehouseID},
		{"location", location},
		{"sku", sku},
	} {
		if strings.TrimSpace(arg.value) == "" {
			return StreamKey{}, &ArgumentError{Param: arg.name, Reason: "must not be empty"}
		}
		if strings.Contains(arg.value, streamSeparator) {
			return StreamKey{}, &ArgumentError{Param: arg.name, Reason: "must not contain ':'"}
		}
	}
	return StreamKey{WarehouseID: warehouseID, Location: location, SKU: sku}, nil
}

// String renders the key as "stock-ledger:{warehouseId}:{location}:{sku}"
func (k StreamKey) String() string {
	return StreamPrefix + streamSeparator + k.WarehouseID + streamSeparator + k.Location + streamSeparator + k.SKU
}

// StreamFor returns the stream id of the (warehouse, location, sku) partition
func StreamFor(warehouseID, location, sku string) (string, error) {
	key, err := NewStreamKey(warehouseID, location, sku)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}

// ParseStreamID is the inverse of StreamFor
func ParseStreamID(streamID string) (StreamKey, error) {
	parts := strings.Split(streamID, streamSeparator)
	if len(parts) != 4 || parts[0] != StreamPrefix {
		return StreamKey{}, fmt.Errorf("%w: %q", ErrInvalidStreamID, streamID)
	}
	key, err := NewStreamKey(parts[1], parts[2], parts[3])
	if err != nil {
		return StreamKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidStreamID, streamID, err)
	}
	return key, nil
}
