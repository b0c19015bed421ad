package locks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*LockManager, *miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	lm := NewLockManager(client, zap.NewNop())
	lm.backoff = func(int) time.Duration { return time.Millisecond }
	return lm, mr, client
}

func TestAcquireAndRelease(t *testing.T) {
	lm, _, _ := newTestManager(t)
	ctx := context.Background()

	lock, err := lm.AcquireLock(ctx, TableKey("t1"), time.Minute)
	require.NoError(t, err)

	holder, err := lm.Holder(ctx, TableKey("t1"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(holder, lm.InstanceID()))

	require.NoError(t, lock.Release(ctx))
	holder, err = lm.Holder(ctx, TableKey("t1"))
	require.NoError(t, err)
	assert.Empty(t, holder)

	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestSecondInstanceCannotAcquire(t *testing.T) {
	lm, _, client := newTestManager(t)
	other := NewLockManager(client, zap.NewNop())
	other.backoff = lm.backoff
	ctx := context.Background()

	_, err := lm.AcquireLock(ctx, TableKey("t1"), time.Minute)
	require.NoError(t, err)

	_, err = other.AcquireLock(ctx, TableKey("t1"), time.Minute)
	assert.ErrorIs(t, err, ErrLockAlreadyHeld)
}

func TestExpiredLockCanBeRetaken(t *testing.T) {
	lm, mr, _ := newTestManager(t)
	ctx := context.Background()

	stale, err := lm.AcquireLock(ctx, TableKey("t1"), time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := lm.AcquireLock(ctx, TableKey("t1"), time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Extend(ctx, time.Minute), ErrLockNotHeld)
	assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
	require.NoError(t, fresh.Release(ctx))
}

func TestExtendResetsTTL(t *testing.T) {
	lm, mr, _ := newTestManager(t)
	ctx := context.Background()

	lock, err := lm.AcquireLock(ctx, TableKey("t1"), time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Extend(ctx, time.Minute))

	mr.FastForward(5 * time.Second)
	holder, err := lm.Holder(ctx, TableKey("t1"))
	require.NoError(t, err)
	assert.NotEmpty(t, holder)
}

func TestKeepAliveStopsOnRelease(t *testing.T) {
	lm, _, _ := newTestManager(t)
	ctx := context.Background()

	lock, err := lm.AcquireLock(ctx, TableKey("t1"), 300*time.Millisecond)
	require.NoError(t, err)
	lock.KeepAlive(ctx, func(err error) { t.Errorf("unexpected lock loss: %v", err) })

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, lock.Release(ctx))
}
