package projections

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryAvailableStockRepository keeps views in a map. Used by tests and local runs.
type MemoryAvailableStockRepository struct {
	mu    sync.RWMutex
	views map[string]AvailableStockView
	now   func() time.Time
}

// NewMemoryAvailableStockRepository creates an empty repository
func NewMemoryAvailableStockRepository() *MemoryAvailableStockRepository {
	return &MemoryAvailableStockRepository{
		views: make(map[string]AvailableStockView),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryAvailableStockRepository) Update(_ context.Context, warehouseID, location, sku string, fn UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ViewKey(warehouseID, location, sku)
	base, ok := r.views[key]
	if !ok {
		base = NewAvailableStockView(warehouseID, location, sku)
	}
	next, changed := fn(cloneView(base))
	if !changed {
		return nil
	}
	next.Key = key
	next.Version = base.Version + 1
	next.UpdatedAt = r.now()
	r.views[key] = next
	return nil
}

func (r *MemoryAvailableStockRepository) FindByKey(_ context.Context, warehouseID, location, sku string) (*AvailableStockView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view, ok := r.views[ViewKey(warehouseID, location, sku)]
	if !ok {
		return nil, nil
	}
	view = cloneView(view)
	return &view, nil
}

// FindWithFilter orders results by key; Pagination.SortBy is ignored
func (r *MemoryAvailableStockRepository) FindWithFilter(_ context.Context, filter AvailableStockFilter, page Pagination) (*PagedResult[AvailableStockView], error) {
	r.mu.RLock()
	var matched []AvailableStockView
	for _, v := range r.views {
		if filter.WarehouseID != nil && v.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.SKU != nil && v.SKU != *filter.SKU {
			continue
		}
		if filter.Location != nil && v.Location != *filter.Location {
			continue
		}
		if filter.MinAvailable != nil && v.AvailableQty < *filter.MinAvailable {
			continue
		}
		matched = append(matched, cloneView(v))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if page.SortOrder == "desc" {
			return matched[i].Key > matched[j].Key
		}
		return matched[i].Key < matched[j].Key
	})

	total := int64(len(matched))
	start := min(page.Offset, len(matched))
	end := len(matched)
	if page.Limit > 0 {
		end = min(start+page.Limit, len(matched))
	}
	items := append([]AvailableStockView{}, matched[start:end]...)

	return &PagedResult[AvailableStockView]{
		Items:   items,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: int64(end) < total,
	}, nil
}

func cloneView(v AvailableStockView) AvailableStockView {
	v.RecentEvents = append([]string(nil), v.RecentEvents...)
	return v
}
