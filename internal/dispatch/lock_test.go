// internal/dispatch/lock_test.go
package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func setupLockTest(t *testing.T) (*miniredis.Miniredis, *CycleLock) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewCycleLock(client, "promise-dispatch:cycle-lock", 10*time.Minute)
}

func TestCycleLock_AcquireAndRelease(t *testing.T) {
	_, lock := setupLockTest(t)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)

	// Second acquire while held fails, the cycle is single flight.
	acquired, err = lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.False(t, acquired)

	assert.NoError(t, lock.Release(ctx))

	acquired, err = lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
}

func TestCycleLock_TTLExpiryFreesCrashedHolder(t *testing.T) {
	mr, lock := setupLockTest(t)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)

	// A crashed run never releases; the TTL bounds how long it blocks.
	mr.FastForward(11 * time.Minute)

	acquired, err = lock.Acquire(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
}
