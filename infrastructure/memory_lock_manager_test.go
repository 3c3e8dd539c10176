package infrastructure

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledgerbot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockManager_AcquireRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryLockManager()

	lock, err := m.Acquire(ctx, "account:1", "node-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "account:1", lock.Key)
	assert.Equal(t, "node-a", lock.HolderID)
	assert.NotEmpty(t, lock.Token)

	_, err = m.Acquire(ctx, "account:1", "node-b", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockBusy)

	require.NoError(t, m.Release(ctx, lock))
	assert.ErrorIs(t, m.Release(ctx, lock), domain.ErrLockNotHeld)

	again, err := m.Acquire(ctx, "account:1", "node-b", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, lock.Token, again.Token)
}

func TestMemoryLockManager_ExpiredLeaseIsTakenOver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryLockManager()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	stale, err := m.Acquire(ctx, "account:7", "crashed", time.Minute)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	fresh, err := m.Acquire(ctx, "account:7", "node-b", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Release(ctx, stale), domain.ErrLockNotHeld, "stale holder must not release the new lease")
	assert.NoError(t, m.Release(ctx, fresh))
}

func TestMemoryLockManager_SweepExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryLockManager()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	_, err := m.Acquire(ctx, "account:1", "a", time.Second)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "account:2", "a", time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	swept, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, 1, m.Held())
}

func TestMemoryLockManager_ConcurrentAcquireSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryLockManager()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, "account:3", "racer", time.Minute); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}
