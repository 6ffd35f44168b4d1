package saga

import (
	"fmt"

	"github.com/wms-platform/stock-engine/pkg/resilience"
)

const (
	// DefaultMaxRetryAttempts is the default number of consumption failures before a saga fails
	DefaultMaxRetryAttempts = 5

	// MaxRetryAttemptsLimit caps MaxRetryAttempts
	MaxRetryAttemptsLimit = 10
)

// Config bounds the pick-stock saga
type Config struct {
	MaxRetryAttempts int
	Backoff          resilience.Backoff
}

// DefaultConfig returns the default saga bounds
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts: DefaultMaxRetryAttempts,
		Backoff:          resilience.DefaultBackoff(),
	}
}

// Validate checks the bounds
func (c Config) Validate() error {
	if c.MaxRetryAttempts < 1 || c.MaxRetryAttempts > MaxRetryAttemptsLimit {
		return fmt.Errorf("saga max retry attempts must be between 1 and %d, got %d", MaxRetryAttemptsLimit, c.MaxRetryAttempts)
	}
	return c.Backoff.Validate()
}
