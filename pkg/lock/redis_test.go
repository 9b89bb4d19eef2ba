package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLockerWithClient(client, "test:"), mr
}

func TestRedisLocker_Contention(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	lease, err := l.Acquire(ctx, "job:daily-summary", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:job:daily-summary"))
	assert.Equal(t, time.Minute, mr.TTL("test:job:daily-summary"))

	_, err = l.Acquire(ctx, "job:daily-summary", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.Acquire(ctx, "job:delayed-messages", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("test:job:daily-summary"))
	require.NoError(t, lease.Release(ctx))

	again, err := l.Acquire(ctx, "job:daily-summary", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLocker_RefreshExtendsLease(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	lease, err := l.Acquire(ctx, "job", time.Second)
	require.NoError(t, err)

	mr.FastForward(800 * time.Millisecond)
	require.NoError(t, lease.Refresh(ctx, time.Second))
	assert.Equal(t, time.Second, mr.TTL("test:job"))

	mr.FastForward(800 * time.Millisecond)
	_, err = l.Acquire(ctx, "job", time.Second)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestRedisLocker_ExpiredLeaseIsTokenChecked(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	stale, err := l.Acquire(ctx, "job", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	assert.False(t, mr.Exists("test:job"))

	current, err := l.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), ErrLost)
	assert.ErrorIs(t, stale.Release(ctx), ErrLost)

	// the new holder is untouched by the stale lease
	assert.Equal(t, time.Minute, mr.TTL("test:job"))
	_, err = l.Acquire(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
	require.NoError(t, current.Release(ctx))
}

func TestRedisLocker_KeepCancelsOnTakeover(t *testing.T) {
	l, mr := newRedisLocker(t)

	lease, err := l.Acquire(context.Background(), "job", 60*time.Millisecond)
	require.NoError(t, err)

	ctx, stop := lease.Keep(context.Background(), 60*time.Millisecond, nil)
	defer stop()

	mr.Set("test:job", "someone-else")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context survived a lost lease")
	}
	v, err := mr.Get("test:job")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}
