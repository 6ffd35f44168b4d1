package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/logging"
	"github.com/wms-platform/stock-engine/pkg/metrics"
)

// PublisherConfig holds configuration for the outbox publisher
type PublisherConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	BatchSize    int           `yaml:"batchSize"`
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    100,
	}
}

// Publisher ships pending outbox records to Kafka. Delivery is at least once:
// a record whose publish succeeded but could not be marked goes out again.
type Publisher struct {
	repo     Repository
	producer kafka.EventPublisher
	logger   *logging.Logger
	metrics  *metrics.Metrics
	config   PublisherConfig

	mu      sync.Mutex
	stop    context.CancelFunc
	stopped chan struct{}
}

// NewPublisher creates a new outbox publisher
func NewPublisher(
	repo Repository,
	producer kafka.EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
	config *PublisherConfig,
) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	return &Publisher{
		repo:     repo,
		producer: producer,
		logger:   logger.WithComponent("outbox-publisher"),
		metrics:  m,
		config:   *config,
	}
}

// Start polls the outbox in the background until Stop or ctx is done
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return fmt.Errorf("outbox publisher already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.stop = cancel
	p.stopped = make(chan struct{})

	p.logger.Info("Starting outbox publisher", "interval", p.config.PollInterval, "batchSize", p.config.BatchSize)
	go p.run(runCtx, p.stopped)
	return nil
}

// Stop ends polling and waits for the batch in flight
func (p *Publisher) Stop() error {
	p.mu.Lock()
	stop, stopped := p.stop, p.stopped
	p.stop, p.stopped = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return fmt.Errorf("outbox publisher not running")
	}
	stop()
	<-stopped

	p.logger.Info("Outbox publisher stopped")
	return nil
}

// IsRunning reports whether the polling loop is active
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Publisher) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Error("Outbox poll failed")
			}
		}
	}
}

// PublishPending ships one batch and returns how many records went out.
// After a failure, later records with the same key wait for the next batch
// so a key's records never overtake each other.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	records, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find pending outbox records: %w", err)
	}

	blocked := make(map[string]bool)
	published := 0
	for _, record := range records {
		if blocked[record.Key] {
			continue
		}

		if err := p.ship(ctx, record); err != nil {
			blocked[record.Key] = true
			p.fail(ctx, record, err)
			continue
		}

		published++
		p.metrics.RecordOutboxPublish(record.EventType, true)
		if err := p.repo.MarkPublished(ctx, record.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark outbox record published", "recordId", record.ID)
		}
	}
	return published, nil
}

func (p *Publisher) ship(ctx context.Context, record *Record) error {
	ce, err := record.CloudEvent()
	if err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	return p.producer.PublishEvent(ctx, record.Topic, ce)
}

func (p *Publisher) fail(ctx context.Context, record *Record, cause error) {
	park := record.LastAttempt()
	p.metrics.RecordOutboxPublish(record.EventType, false)

	log := p.logger.WithContext(ctx).WithError(cause)
	if park {
		p.metrics.RecordOutboxParked(record.EventType)
		log.Error("Outbox record parked after repeated failures",
			"recordId", record.ID, "eventType", record.EventType, "key", record.Key, "attempts", record.Attempts+1)
	} else {
		log.Warn("Outbox publish failed",
			"recordId", record.ID, "eventType", record.EventType, "key", record.Key, "attempt", record.Attempts+1)
	}

	if err := p.repo.RecordFailure(ctx, record.ID, cause.Error(), park); err != nil {
		p.logger.WithError(err).Error("Failed to record outbox failure", "recordId", record.ID)
	}
}
