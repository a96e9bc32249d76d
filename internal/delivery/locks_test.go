package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/campaignkeeper/internal/types"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// exerciseLocker checks that holders of one key never overlap.
func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "vm-1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestKeyedLocker_Serializes(t *testing.T) {
	l := NewKeyedLocker()
	exerciseLocker(t, l)
	if got := l.Len(); got != 0 {
		t.Errorf("Len() after release = %d, want 0", got)
	}
}

func TestKeyedLocker_IndependentKeys(t *testing.T) {
	l := NewKeyedLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err, "a different key must not block")
	unlockB()
	assert.Equal(t, 1, l.Len())
}

func TestKeyedLocker_Timeout(t *testing.T) {
	l := NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "vm-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "vm-1")
	assert.ErrorIs(t, err, types.ErrLockTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.Len())
}

func TestRedisLocker_Serializes(t *testing.T) {
	_, client := setupTestRedis(t)
	exerciseLocker(t, NewRedisLocker(client, time.Second, nil))
}

func TestRedisLocker_ReleaseDeletesKey(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLocker(client, time.Second, nil)

	unlock, err := l.Lock(context.Background(), "vm-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisLockPrefix+"vm-1"))

	unlock()
	assert.False(t, mr.Exists(redisLockPrefix+"vm-1"))
}

func TestRedisLocker_Timeout(t *testing.T) {
	_, client := setupTestRedis(t)
	l := NewRedisLocker(client, time.Minute, nil)

	unlock, err := l.Lock(context.Background(), "vm-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "vm-1")
	assert.ErrorIs(t, err, types.ErrLockTimeout)
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLocker(client, 50*time.Millisecond, nil)

	stale, err := l.Lock(context.Background(), "vm-1")
	require.NoError(t, err)

	mr.FastForward(100 * time.Millisecond)

	fresh, err := l.Lock(context.Background(), "vm-1")
	require.NoError(t, err)
	defer fresh()

	stale()
	assert.True(t, mr.Exists(redisLockPrefix+"vm-1"), "old holder must not delete the new lock")
}
