package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/resilience"
)

// EventHandler is a function that handles a CloudEvent
type EventHandler func(ctx context.Context, event *cloudevents.WMSCloudEvent) error

// AnyEventType subscribes a handler to every event type of a topic without its own handler
const AnyEventType = "*"

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// topicRoute dispatches the messages of one topic by event type
type topicRoute struct {
	handlers map[string]EventHandler
	reader   messageReader
}

// Consumer reads subscribed topics in a consumer group and commits a message only
// after its handler succeeded. A failing message is retried in place with backoff,
// so it is never skipped and the messages behind it keep their order.
type Consumer struct {
	config     *Config
	logger     *slog.Logger
	redelivery resilience.Backoff
	openReader func(topic string) messageReader

	mu     sync.Mutex
	routes map[string]*topicRoute
	wg     sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config *Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		config:     config,
		logger:     logger,
		redelivery: config.redelivery(),
		routes:     make(map[string]*topicRoute),
	}
	c.openReader = c.groupReader
	return c
}

func (c *Consumer) groupReader(topic string) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: 0,
	})
}

// Subscribe registers handler for eventType on topic. Use AnyEventType for a fallback.
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	route, ok := c.routes[topic]
	if !ok {
		route = &topicRoute{handlers: make(map[string]EventHandler)}
		c.routes[topic] = route
	}
	route.handlers[eventType] = handler
}

// Start consumes every subscribed topic and blocks until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if len(c.routes) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("no topics subscribed")
	}
	for topic, route := range c.routes {
		if route.reader == nil {
			route.reader = c.openReader(topic)
		}
		c.wg.Add(1)
		go func(topic string, route *topicRoute) {
			defer c.wg.Done()
			c.consume(ctx, topic, route)
		}(topic, route)
	}
	c.mu.Unlock()

	<-ctx.Done()
	c.wg.Wait()
	return ctx.Err()
}

func (c *Consumer) consume(ctx context.Context, topic string, route *topicRoute) {
	log := c.logger.With("topic", topic, "group", c.config.ConsumerGroup)
	log.Info("Consuming topic")

	for {
		msg, err := route.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Stopped consuming topic")
				return
			}
			log.Error("Fetch failed", "error", err)
			if !sleep(ctx, c.redelivery.InitialDelay) {
				return
			}
			continue
		}

		event, err := decodeEvent(msg)
		if err != nil {
			// nothing will ever handle it, so move past it
			log.Error("Skipping undecodable message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			c.commit(ctx, log, route.reader, msg)
			continue
		}

		if !c.deliver(ctx, log, route, msg, event) {
			return
		}
		c.commit(ctx, log, route.reader, msg)
	}
}

// deliver runs the handler until it succeeds. It returns false when ctx ended first.
func (c *Consumer) deliver(ctx context.Context, log *slog.Logger, route *topicRoute, msg kafka.Message, event *cloudevents.WMSCloudEvent) bool {
	for attempt := 1; ; attempt++ {
		err := route.dispatch(ctx, event)
		if err == nil {
			return true
		}

		wait := c.redelivery.Delay(attempt)
		log.Warn("Handler failed, redelivering",
			"eventType", event.Type,
			"eventId", event.ID,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"retryIn", wait,
			"error", err,
		)

		if !sleep(ctx, wait) {
			return false
		}
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *topicRoute) dispatch(ctx context.Context, event *cloudevents.WMSCloudEvent) error {
	handler, ok := r.handlers[event.Type]
	if !ok {
		handler, ok = r.handlers[AnyEventType]
	}
	if !ok {
		return nil
	}
	return handler(logging.ContextWithCorrelationID(ctx, event.CorrelationID), event)
}

func (c *Consumer) commit(ctx context.Context, log *slog.Logger, reader messageReader, msg kafka.Message) {
	if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error("Commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
}

// Close closes the readers opened by Start
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for topic, route := range c.routes {
		if route.reader == nil {
			continue
		}
		if err := route.reader.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close reader for %s: %w", topic, err)
		}
		route.reader = nil
	}
	return firstErr
}
