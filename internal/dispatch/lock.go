// internal/dispatch/lock.go
package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CycleLock is the trigger-level single-flight guard: a slow previous run
// plus a fresh tick must not produce two overlapping cycles. The TTL bounds
// how long a crashed run can block the next one.
type CycleLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewCycleLock(rdb *redis.Client, key string, ttl time.Duration) *CycleLock {
	return &CycleLock{rdb: rdb, key: key, ttl: ttl}
}

// Acquire returns false when another cycle already holds the lock.
func (l *CycleLock) Acquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

// Release frees the lock after the cycle completes.
func (l *CycleLock) Release(ctx context.Context) error {
	return l.rdb.Del(ctx, l.key).Err()
}
