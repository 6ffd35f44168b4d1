package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryClaimStore is an in-process ClaimStore used by tests and single-node runs
type MemoryClaimStore struct {
	mu     sync.Mutex
	claims map[string]*ProcessedCommand
	config *ClaimConfig
	now    func() time.Time
	token  func() string
}

// NewMemoryClaimStore creates an empty in-memory claim store
func NewMemoryClaimStore(config *ClaimConfig) *MemoryClaimStore {
	return &MemoryClaimStore{
		claims: make(map[string]*ProcessedCommand),
		config: config.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		token:  uuid.NewString,
	}
}

// WithClock overrides the clock; used by tests exercising lease expiry
func (s *MemoryClaimStore) WithClock(now func() time.Time) *MemoryClaimStore {
	s.now = now
	return s
}

func (s *MemoryClaimStore) TryStart(_ context.Context, commandID, commandType string) (*ClaimResult, error) {
	if commandID == "" {
		return nil, ErrCommandIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.claims[commandID]
	if ok && !existing.IsAbandoned(now, s.config.LeaseTimeout) {
		return existing.settled(), nil
	}

	attempts := 1
	if ok {
		attempts = existing.Attempts + 1
	}
	token := s.token()
	s.claims[commandID] = &ProcessedCommand{
		CommandID:   commandID,
		CommandType: commandType,
		Status:      StatusInProgress,
		Attempts:    attempts,
		Token:       token,
		StartedAt:   now,
		ExpiresAt:   now.Add(s.config.RetentionPeriod),
	}
	return &ClaimResult{Outcome: ClaimStarted, Token: token}, nil
}

func (s *MemoryClaimStore) Complete(_ context.Context, commandID, token string, result []byte) error {
	return s.finish(commandID, token, func(c *ProcessedCommand, now time.Time) {
		c.Status = StatusCompleted
		c.Result = append([]byte(nil), result...)
		c.CompletedAt = &now
	})
}

func (s *MemoryClaimStore) Fail(_ context.Context, commandID, token, reason string) error {
	return s.finish(commandID, token, func(c *ProcessedCommand, now time.Time) {
		c.Status = StatusFailed
		c.FailureReason = reason
		c.CompletedAt = &now
	})
}

func (s *MemoryClaimStore) finish(commandID, token string, apply func(*ProcessedCommand, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[commandID]
	if !ok || c.Status != StatusInProgress || c.Token != token {
		return fmt.Errorf("%w: %s", ErrClaimNotHeld, commandID)
	}
	now := s.now()
	apply(c, now)
	c.ExpiresAt = now.Add(s.config.RetentionPeriod)
	return nil
}

func (s *MemoryClaimStore) Get(_ context.Context, commandID string) (*ProcessedCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[commandID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryClaimStore) Clean(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.claims {
		if c.ExpiresAt.Before(before) {
			delete(s.claims, id)
			n++
		}
	}
	return n, nil
}

// MemoryMessageRepository is an in-process MessageRepository
type MemoryMessageRepository struct {
	mu       sync.Mutex
	messages map[string]*ProcessedMessage
}

// NewMemoryMessageRepository creates an empty in-memory message repository
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{messages: make(map[string]*ProcessedMessage)}
}

func messageKey(messageID, topic, consumerGroup string) string {
	return consumerGroup + "|" + topic + "|" + messageID
}

func (r *MemoryMessageRepository) MarkProcessed(_ context.Context, msg *ProcessedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := messageKey(msg.MessageID, msg.Topic, msg.ConsumerGroup)
	if _, ok := r.messages[key]; ok {
		return ErrMessageAlreadyProcessed
	}
	cp := *msg
	r.messages[key] = &cp
	return nil
}

func (r *MemoryMessageRepository) IsProcessed(_ context.Context, messageID, topic, consumerGroup string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.messages[messageKey(messageID, topic, consumerGroup)]
	return ok, nil
}

func (r *MemoryMessageRepository) Clean(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, m := range r.messages {
		if m.ExpiresAt.Before(before) {
			delete(r.messages, k)
			n++
		}
	}
	return n, nil
}
