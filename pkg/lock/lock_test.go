package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lease, err := l.Acquire(ctx, "daily-summary", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "daily-summary", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.Acquire(ctx, "delayed-messages", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, "daily-summary", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLockerDoubleReleaseIsHarmless(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	first, err := l.Acquire(ctx, "job", 0)
	require.NoError(t, err)
	require.NoError(t, first.Release(ctx))

	second, err := l.Acquire(ctx, "job", 0)
	require.NoError(t, err)

	// a stale release must not free the second holder
	require.NoError(t, first.Release(ctx))
	_, err = l.Acquire(ctx, "job", 0)
	assert.ErrorIs(t, err, ErrLocked)
	require.NoError(t, second.Release(ctx))
}

func TestKeep_LocalLeaseNeverCancels(t *testing.T) {
	lease, err := NewLocalLocker().Acquire(context.Background(), "job", 30*time.Millisecond)
	require.NoError(t, err)

	ctx, stop := lease.Keep(context.Background(), 30*time.Millisecond, func(error) {
		t.Error("local lease reported lost")
	})
	time.Sleep(100 * time.Millisecond)
	assert.NoError(t, ctx.Err())
	stop()
	assert.Error(t, ctx.Err())
}

func TestKeep_RefreshesWhileHeld(t *testing.T) {
	var refreshes atomic.Int32
	lease := NewLease(func(context.Context) error { return nil }, func(context.Context, time.Duration) error {
		refreshes.Add(1)
		return nil
	})

	ctx, stop := lease.Keep(context.Background(), 30*time.Millisecond, nil)
	time.Sleep(100 * time.Millisecond)
	stop()

	assert.GreaterOrEqual(t, refreshes.Load(), int32(2))
	assert.Error(t, ctx.Err())
}

func TestKeep_CancelsWhenLost(t *testing.T) {
	lease := NewLease(func(context.Context) error { return nil }, func(context.Context, time.Duration) error {
		return ErrLost
	})

	lost := make(chan error, 1)
	ctx, stop := lease.Keep(context.Background(), 30*time.Millisecond, func(err error) { lost <- err })
	defer stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after the lease was lost")
	}
	assert.ErrorIs(t, <-lost, ErrLost)
}

func TestKeep_ToleratesTransientErrorsUntilTTL(t *testing.T) {
	var calls atomic.Int32
	lease := NewLease(func(context.Context) error { return nil }, func(context.Context, time.Duration) error {
		calls.Add(1)
		return errors.New("i/o timeout")
	})

	lost := make(chan struct{})
	ctx, stop := lease.Keep(context.Background(), 60*time.Millisecond, func(error) { close(lost) })
	defer stop()

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("lease kept past its ttl without a refresh")
	}
	assert.Error(t, ctx.Err())
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}
