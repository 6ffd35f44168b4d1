package resilience

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultBackoffInitialDelay = 5 * time.Second
	DefaultBackoffMaxDelay     = 5 * time.Minute
	DefaultBackoffFactor       = 2.0
)

// Backoff is a bounded exponential delay schedule.
// Delay(n) = min(InitialDelay * Factor^(n-1), MaxDelay) for attempt n >= 1.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultBackoff returns the default schedule: 5s, 10s, 20s ... capped at 5m
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: DefaultBackoffInitialDelay,
		MaxDelay:     DefaultBackoffMaxDelay,
		Factor:       DefaultBackoffFactor,
	}
}

// Validate rejects schedules that are not monotonic or not bounded
func (b Backoff) Validate() error {
	switch {
	case b.InitialDelay <= 0:
		return fmt.Errorf("backoff initial delay must be positive")
	case b.MaxDelay < b.InitialDelay:
		return fmt.Errorf("backoff max delay must be >= initial delay")
	case b.Factor < 1:
		return fmt.Errorf("backoff factor must be >= 1")
	}
	return nil
}

// Delay returns the wait before the given retry attempt (1-based)
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.InitialDelay) * math.Pow(b.Factor, float64(attempt-1))
	if d >= float64(b.MaxDelay) || math.IsInf(d, 0) {
		return b.MaxDelay
	}
	return time.Duration(d)
}
