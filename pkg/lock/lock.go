// Package lock serializes runs of the same job.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned by Acquire when another holder owns the key.
var ErrLocked = errors.New("lock already held")

// ErrLost is returned once a lease has expired or been taken over.
var ErrLost = errors.New("lock lease lost")

// Locker hands out exclusive, non-blocking leases by key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// Lease is one held lock.
type Lease struct {
	release func(ctx context.Context) error
	refresh func(ctx context.Context, ttl time.Duration) error

	once       sync.Once
	releaseErr error
}

// NewLease builds a lease from its release and refresh operations. A nil
// refresh marks a lease that never expires.
func NewLease(release func(ctx context.Context) error, refresh func(ctx context.Context, ttl time.Duration) error) *Lease {
	return &Lease{release: release, refresh: refresh}
}

// Release gives the lock back. Later calls return the first call's result.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.releaseErr = l.release(ctx)
	})
	return l.releaseErr
}

// Refresh pushes the lease's expiry ttl into the future.
func (l *Lease) Refresh(ctx context.Context, ttl time.Duration) error {
	if l.refresh == nil {
		return nil
	}
	return l.refresh(ctx, ttl)
}

// Keep refreshes the lease every ttl/3 until stop is called. The returned
// context is cancelled, and onLost called, once the lease is lost or has gone
// a full ttl without a successful refresh.
func (l *Lease) Keep(ctx context.Context, ttl time.Duration, onLost func(error)) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if l.refresh == nil || ttl <= 0 {
		return ctx, cancel
	}

	interval := ttl / 3
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		renewed := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := l.refresh(ctx, ttl)
				if err == nil {
					renewed = time.Now()
					continue
				}
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, ErrLost) || time.Since(renewed)+interval >= ttl {
					if onLost != nil {
						onLost(err)
					}
					cancel()
					return
				}
			}
		}
	}()

	return ctx, func() {
		cancel()
		<-done
	}
}

// LocalLocker serializes holders inside one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// Acquire ignores ttl: a local lease lives until it is released.
func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrLocked
	}
	l.held[key] = true

	return NewLease(func(context.Context) error {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
		return nil
	}, nil), nil
}
