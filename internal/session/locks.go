package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Locker serializes ensure_single_active_session across concurrent
// callers. Acquire blocks until the lock is held and returns a release
// function.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// MutexLock is the default, single-process Locker.
type MutexLock struct {
	mu sync.Mutex
}

func (l *MutexLock) Acquire(_ context.Context) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// RedisLock is a SETNX-based distributed lock, used when redis.addr is
// configured so more than one request worker can share the same store
// safely, per SPEC_FULL §5.G. Grounded on the teacher's
// internal/orchestrator/dedupe.go Redis client construction.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLock dials addr and validates the connection before returning.
func NewRedisLock(addr string) (*RedisLock, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisLock{client: c, key: "session:active-lock", ttl: 10 * time.Second, retry: 50 * time.Millisecond}, nil
}

// Acquire spins on SETNX until it holds the lock or ctx is done.
func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	for {
		ok, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return func() { _ = l.client.Del(context.Background(), l.key).Err() }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Close releases the underlying Redis client.
func (l *RedisLock) Close() error {
	return l.client.Close()
}
