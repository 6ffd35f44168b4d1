package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker rejects a call without running it
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position, numbered as exported on the state gauge
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name string

	// HalfOpenProbes is how many calls may run while half-open
	HalfOpenProbes uint32
	// Window clears the closed-state counts periodically; 0 never clears them
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing
	Cooldown time.Duration

	// The breaker trips after ConsecutiveFailures failures in a row, or once
	// MinRequests calls in the window failed at FailureRatio or more
	ConsecutiveFailures uint32
	MinRequests         uint32
	FailureRatio        float64

	// IsSuccessful counts an error as a success. Business rejections should
	// not open the circuit.
	IsSuccessful func(err error) bool

	// OnStateChange observes every transition, e.g. to export a gauge
	OnStateChange func(name string, to State)
}

// DefaultCircuitBreakerConfig trips after 5 straight failures or a 50% failure rate over 10 calls
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                name,
		HalfOpenProbes:      3,
		Window:              time.Minute,
		Cooldown:            30 * time.Second,
		ConsecutiveFailures: 5,
		MinRequests:         10,
		FailureRatio:        0.5,
	}
}

func (c *CircuitBreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	return counts.Requests >= c.MinRequests &&
		float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// CircuitBreaker guards calls to a dependency with gobreaker
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("breaker", config.Name)

	return &CircuitBreaker{
		logger: logger,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:         config.Name,
			MaxRequests:  config.HalfOpenProbes,
			Interval:     config.Window,
			Timeout:      config.Cooldown,
			ReadyToTrip:  config.readyToTrip,
			IsSuccessful: config.IsSuccessful,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
				if config.OnStateChange != nil {
					config.OnStateChange(name, stateOf(to))
				}
			},
		}),
	}
}

// Execute runs fn unless the breaker is open. Rejections wrap ErrCircuitOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Debug("Call rejected", "reason", err.Error())
		return fmt.Errorf("%w: %s", ErrCircuitOpen, c.cb.Name())
	}
	return err
}

// State returns the current position of the breaker
func (c *CircuitBreaker) State() State {
	return stateOf(c.cb.State())
}
