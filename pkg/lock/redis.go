package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript and refreshScript act only while the key still carries our
// token, so an expired lease never touches a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes holders across processes sharing one Redis.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

type Config struct {
	URL          string
	Prefix       string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
}

func NewRedisLocker(ctx context.Context, cfg Config) (*RedisLocker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLockerWithClient(client, cfg.Prefix), nil
}

func NewRedisLockerWithClient(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "card-notifier:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire takes the key for ttl. The lease must be refreshed, usually through
// Lease.Keep, by any holder that may outlive ttl.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("release lock %s: %w", key, ErrLost)
		}
		return nil
	}
	refresh := func(ctx context.Context, ttl time.Duration) error {
		n, err := refreshScript.Run(ctx, l.client, []string{fullKey}, token, ttl.Milliseconds()).Int()
		if err != nil {
			return fmt.Errorf("refresh lock %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("refresh lock %s: %w", key, ErrLost)
		}
		return nil
	}
	return NewLease(release, refresh), nil
}

// Ping reports whether Redis is reachable.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
