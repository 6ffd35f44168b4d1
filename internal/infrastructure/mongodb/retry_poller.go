package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/logging"
)

// RetryPollerConfig holds configuration for the retry poller
type RetryPollerConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	BatchSize    int           `yaml:"batchSize"`
	Lease        time.Duration `yaml:"lease"`
}

// DefaultRetryPollerConfig returns default configuration
func DefaultRetryPollerConfig() *RetryPollerConfig {
	return &RetryPollerConfig{
		PollInterval: time.Second,
		BatchSize:    50,
		Lease:        30 * time.Second,
	}
}

// RetryPoller delivers due scheduled retries through the event publisher.
// Delivery is at least once; the saga ignores retries whose token is no longer current.
type RetryPoller struct {
	store     *RetryScheduleStore
	publisher domain.EventPublisher
	logger    *logging.Logger
	config    RetryPollerConfig
	now       func() time.Time

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewRetryPoller creates a poller
func NewRetryPoller(store *RetryScheduleStore, publisher domain.EventPublisher, logger *logging.Logger, config *RetryPollerConfig) *RetryPoller {
	if config == nil {
		config = DefaultRetryPollerConfig()
	}
	return &RetryPoller{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent("retry-poller"),
		config:    *config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start starts the polling loop in the background
func (p *RetryPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("retry poller already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	p.logger.Info("Starting retry poller", "interval", p.config.PollInterval, "lease", p.config.Lease)

	go p.run(ctx, p.stopCh, p.stoppedCh)
	return nil
}

// Stop stops the polling loop and waits for the current batch
func (p *RetryPoller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("retry poller not running")
	}
	stopCh, stoppedCh := p.stopCh, p.stoppedCh
	p.mu.Unlock()

	close(stopCh)
	<-stoppedCh

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *RetryPoller) run(ctx context.Context, stopCh, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.DeliverDue(ctx); err != nil {
				p.logger.WithError(err).Error("Failed to deliver scheduled retries")
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// DeliverDue publishes up to one batch of due retries and returns how many went out.
// A retry whose publish fails keeps its lease and is picked up again after it expires.
func (p *RetryPoller) DeliverDue(ctx context.Context) (int, error) {
	delivered := 0
	for delivered < p.config.BatchSize {
		due, err := p.store.ClaimDue(ctx, p.now(), p.config.Lease)
		if err != nil {
			return delivered, err
		}
		if due == nil {
			return delivered, nil
		}

		if err := p.publisher.Publish(ctx, due.Message()); err != nil {
			return delivered, fmt.Errorf("failed to publish retry %s: %w", due.Token, err)
		}
		if err := p.store.MarkDelivered(ctx, due.Token); err != nil {
			// redelivered after the lease expires; the saga drops it by token
			p.logger.WithError(err).Error("Failed to mark retry delivered", "retryToken", due.Token)
		}

		p.logger.Debug("Delivered scheduled retry",
			"correlationId", due.CorrelationID,
			"retryToken", due.Token,
			"attempt", due.Attempt,
		)
		delivered++
	}
	return delivered, nil
}
