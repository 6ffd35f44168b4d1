package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("dependency down")

func fail(context.Context) error { return errDown }

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.ConsecutiveFailures = 3
	cfg.OnStateChange = func(_ string, to State) { transitions = append(transitions, to) }
	cb := NewCircuitBreaker(cfg, nil)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuitBreaker_ProbesAfterCooldown(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.ConsecutiveFailures = 1
	cfg.Cooldown = 10 * time.Millisecond
	cb := NewCircuitBreaker(cfg, nil)

	require.ErrorIs(t, cb.Execute(context.Background(), fail), errDown)
	require.Equal(t, StateOpen, cb.State())

	require.Eventually(t, func() bool { return cb.State() == StateHalfOpen }, time.Second, 5*time.Millisecond)
	for i := uint32(0); i < cfg.HalfOpenProbes; i++ {
		require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoresErrorsCountedAsSuccess(t *testing.T) {
	rejection := errors.New("insufficient balance")
	cfg := DefaultCircuitBreakerConfig("test")
	cfg.ConsecutiveFailures = 2
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, rejection) }
	cb := NewCircuitBreaker(cfg, nil)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return rejection }), rejection)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBackoff_DelayDoublesUpToMax(t *testing.T) {
	b := DefaultBackoff()
	require.NoError(t, b.Validate())
	assert.Equal(t, 5*time.Second, b.Delay(0))
	assert.Equal(t, 5*time.Second, b.Delay(1))
	assert.Equal(t, 20*time.Second, b.Delay(3))
	assert.Equal(t, 5*time.Minute, b.Delay(50))

	assert.Error(t, Backoff{InitialDelay: time.Second, MaxDelay: time.Millisecond, Factor: 2}.Validate())
	assert.Error(t, Backoff{InitialDelay: time.Second, MaxDelay: time.Minute, Factor: 0.5}.Validate())
}
