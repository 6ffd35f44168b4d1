// Package memory holds in-process adapters for the engine's ports. They back unit tests
// and single-node runs where MongoDB and Kafka are not available.
package memory

import (
	"context"
	"sync"

	"github.com/wms-platform/stock-engine/internal/domain"
)

// Subscriber receives events published on the Bus
type Subscriber func(ctx context.Context, event domain.DomainEvent) error

// Bus is a synchronous in-process message bus. Every published event is kept
// and handed to the subscribers of its type in subscription order.
type Bus struct {
	mu          sync.Mutex
	published   []domain.DomainEvent
	subscribers map[string][]Subscriber
	failNext    error
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Subscriber)}
}

// Subscribe registers fn for eventType
func (b *Bus) Subscribe(eventType string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], fn)
}

// FailNext makes the next Publish return err without recording anything
func (b *Bus) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

// Publish implements domain.EventPublisher
func (b *Bus) Publish(ctx context.Context, events ...domain.DomainEvent) error {
	b.mu.Lock()
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, events...)
	b.mu.Unlock()

	for _, event := range events {
		b.mu.Lock()
		subs := append([]Subscriber(nil), b.subscribers[event.EventType()]...)
		b.mu.Unlock()

		for _, sub := range subs {
			if err := sub(ctx, event); err != nil {
				return err
			}
		}
	}
	return nil
}

// Published returns a copy of everything published so far
func (b *Bus) Published() []domain.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.DomainEvent(nil), b.published...)
}

// PublishedOfType returns the published events with the given type
func (b *Bus) PublishedOfType(eventType string) []domain.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.DomainEvent
	for _, e := range b.published {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
