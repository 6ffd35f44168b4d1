package projections

import (
	"context"
	"fmt"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
)

// AvailableStockProjector handles domain events and keeps the available stock views in sync.
// Each event is applied at most once per view, so redelivery after a partial failure is safe.
type AvailableStockProjector struct {
	repo    AvailableStockRepository
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewAvailableStockProjector creates a new projector
func NewAvailableStockProjector(repo AvailableStockRepository, logger *logging.Logger, m *metrics.Metrics) *AvailableStockProjector {
	return &AvailableStockProjector{
		repo:    repo,
		logger:  logger.WithComponent("available-stock-projector"),
		metrics: m,
	}
}

// Handle folds event into every view it touches. Events the projection does not track are ignored.
func (p *AvailableStockProjector) Handle(ctx context.Context, event domain.DomainEvent) error {
	views := AffectedViews(event)
	if len(views) == 0 {
		return nil
	}

	eventID := EventID(event)
	for _, v := range views {
		err := p.repo.Update(ctx, v[0], v[1], v[2], func(current AvailableStockView) (AvailableStockView, bool) {
			if current.HasApplied(eventID) {
				return current, false
			}
			return Apply(event, current).markApplied(eventID), true
		})
		if err != nil {
			p.logger.WithContext(ctx).Error("Failed to update available stock view",
				"view", ViewKey(v[0], v[1], v[2]),
				"eventType", event.EventType(),
				"error", err,
			)
			return fmt.Errorf("project %s onto %s: %w", event.EventType(), ViewKey(v[0], v[1], v[2]), err)
		}
	}

	p.metrics.RecordProjectionUpdate(event.EventType())
	p.logger.WithContext(ctx).Debug("Projected event",
		"eventType", event.EventType(),
		"aggregateId", event.AggregateID(),
		"views", len(views),
	)
	return nil
}
