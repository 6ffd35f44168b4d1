package projections

import (
	"context"
	"errors"
)

// ErrViewConflict is returned when a view changed between read and write
var ErrViewConflict = errors.New("available stock view was modified concurrently")

// UpdateFunc computes the new view from the stored one. Returning false leaves the view untouched.
type UpdateFunc func(current AvailableStockView) (AvailableStockView, bool)

// AvailableStockRepository manages the available stock read model
type AvailableStockRepository interface {
	// Update applies fn to the view at key (or to the empty view if none exists) and stores the result.
	// It retries internally when the view changed concurrently.
	Update(ctx context.Context, warehouseID, location, sku string, fn UpdateFunc) error

	// FindByKey returns nil, nil when the view does not exist
	FindByKey(ctx context.Context, warehouseID, location, sku string) (*AvailableStockView, error)

	// FindWithFilter retrieves views matching filter criteria with pagination
	FindWithFilter(ctx context.Context, filter AvailableStockFilter, page Pagination) (*PagedResult[AvailableStockView], error)
}

// AvailableStockFilter narrows FindWithFilter. Nil fields match everything.
type AvailableStockFilter struct {
	WarehouseID  *string
	SKU          *string
	Location     *string
	MinAvailable *int64
}

// Pagination holds pagination and sorting options
type Pagination struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string // "asc" or "desc"
}

// PagedResult is a page of results
type PagedResult[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"hasMore"`
}
