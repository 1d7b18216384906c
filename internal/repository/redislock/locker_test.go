package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb, nil), mr
}

func TestTryLockExcludesSecondHolder(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "F1|2025-06-01|feed", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(keyPrefix+"F1|2025-06-01|feed"))

	_, ok, err = locker.TryLock(ctx, "F1|2025-06-01|feed", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = locker.TryLock(ctx, "F1|2025-06-01|water", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")

	release()
	assert.False(t, mr.Exists(keyPrefix+"F1|2025-06-01|feed"))

	_, ok, err = locker.TryLock(ctx, "F1|2025-06-01|feed", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredHolderCannotReleaseNewLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	staleRelease, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease()
	assert.True(t, mr.Exists(keyPrefix+"k"), "late release must not drop the new holder's lock")
}

func TestTryLockReportsRedisErrors(t *testing.T) {
	locker, mr := newTestLocker(t)
	mr.SetError("READONLY You can't write against a read only replica.")

	_, ok, err := locker.TryLock(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
