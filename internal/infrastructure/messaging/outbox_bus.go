package messaging

import (
	"context"
	"fmt"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/outbox"
)

// OutboxBus publishes by writing to the outbox. The outbox publisher ships the records to Kafka.
type OutboxBus struct {
	repo      outbox.Repository
	envelopes *EnvelopeFactory
}

// NewOutboxBus creates an OutboxBus
func NewOutboxBus(repo outbox.Repository, envelopes *EnvelopeFactory) *OutboxBus {
	return &OutboxBus{repo: repo, envelopes: envelopes}
}

// Publish implements domain.EventPublisher
func (b *OutboxBus) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	records, err := b.envelopes.ToOutbox(ctx, events...)
	if err != nil {
		return err
	}
	if err := b.repo.SaveAll(ctx, records); err != nil {
		return fmt.Errorf("failed to write %d events to outbox: %w", len(records), err)
	}
	return nil
}
