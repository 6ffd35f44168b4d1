package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClaimStore_NoTakeoverWithoutLease(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryClaimStore(nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	res, err := store.TryStart(ctx, "cmd-1", "RecordStockMovement")
	require.NoError(t, err)
	assert.Equal(t, ClaimStarted, res.Outcome)
	assert.NotEmpty(t, res.Token)

	now = now.Add(24 * time.Hour)
	res, err = store.TryStart(ctx, "cmd-1", "RecordStockMovement")
	require.NoError(t, err)
	assert.Equal(t, ClaimInProgress, res.Outcome)
}

func TestMemoryClaimStore_LeaseExpiryHandsOverTheClaim(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryClaimStore(&ClaimConfig{LeaseTimeout: time.Minute}).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := store.TryStart(ctx, "cmd-1", "RecordStockMovement")
	require.NoError(t, err)
	assert.Equal(t, ClaimStarted, first.Outcome)

	res, err := store.TryStart(ctx, "cmd-1", "RecordStockMovement")
	require.NoError(t, err)
	assert.Equal(t, ClaimInProgress, res.Outcome)

	now = now.Add(2 * time.Minute)
	second, err := store.TryStart(ctx, "cmd-1", "RecordStockMovement")
	require.NoError(t, err)
	assert.Equal(t, ClaimStarted, second.Outcome)
	assert.NotEqual(t, first.Token, second.Token)

	assert.ErrorIs(t, store.Complete(ctx, "cmd-1", first.Token, []byte(`"stale"`)), ErrClaimNotHeld)
	require.NoError(t, store.Complete(ctx, "cmd-1", second.Token, []byte(`"fresh"`)))

	res, err = store.TryStart(ctx, "cmd-1", "RecordStockMovement")
	require.NoError(t, err)
	assert.Equal(t, ClaimAlreadyCompleted, res.Outcome)
	assert.Equal(t, []byte(`"fresh"`), res.Result)
}

func TestMemoryClaimStore_SettledClaimsAreTerminal(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryClaimStore(&ClaimConfig{LeaseTimeout: time.Minute}).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	assert.ErrorIs(t, store.Complete(ctx, "missing", "token", nil), ErrClaimNotHeld)

	done, err := store.TryStart(ctx, "cmd-1", "PickStock")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "cmd-1", done.Token, []byte(`{}`)))
	assert.ErrorIs(t, store.Fail(ctx, "cmd-1", done.Token, "late"), ErrClaimNotHeld)

	failed, err := store.TryStart(ctx, "cmd-2", "PickStock")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "cmd-2", failed.Token, "insufficient balance"))

	now = now.Add(time.Hour)

	res, err := store.TryStart(ctx, "cmd-1", "PickStock")
	require.NoError(t, err)
	assert.Equal(t, ClaimAlreadyCompleted, res.Outcome)
	assert.Equal(t, []byte(`{}`), res.Result)

	res, err = store.TryStart(ctx, "cmd-2", "PickStock")
	require.NoError(t, err)
	assert.Equal(t, ClaimAlreadyFailed, res.Outcome)
	assert.Equal(t, "insufficient balance", res.FailureReason)
}

func TestMemoryClaimStore_Clean(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryClaimStore(&ClaimConfig{RetentionPeriod: time.Hour}).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := store.TryStart(ctx, "old", "PickStock")
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	_, err = store.TryStart(ctx, "new", "PickStock")
	require.NoError(t, err)

	n, err := store.Clean(ctx, now.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "new")
	assert.NoError(t, err)
}
