package redisclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*DoctorLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisDoctorLocker(client, ttl)
	l.retry = 5 * time.Millisecond
	return l, mr
}

func TestDoctorLockKey_IsScopedPerDoctor(t *testing.T) {
	a := uuid.MustParse("0b5b2c4e-8d7f-4c67-9d43-0f0c8f6d2a11")
	b := uuid.MustParse("6a1b8a3e-2f55-4e0f-a0a4-59c3a0e7c9d2")

	assert.Equal(t, "lock:doctor-queue:0b5b2c4e-8d7f-4c67-9d43-0f0c8f6d2a11", doctorLockKey(a))
	assert.NotEqual(t, doctorLockKey(a), doctorLockKey(b))
}

func TestWithDoctorLock_HoldsKeyWithTTLAndReleases(t *testing.T) {
	l, mr := newTestLocker(t, 5*time.Second)
	doctorID := uuid.New()
	key := doctorLockKey(doctorID)

	ran := false
	err := l.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(key))
		assert.Equal(t, 5*time.Second, mr.TTL(key))

		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(key))
}

func TestWithDoctorLock_ReturnsCallbackError(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	doctorID := uuid.New()
	boom := errors.New("tx failed")

	err := l.WithDoctorLock(context.Background(), doctorID, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(doctorLockKey(doctorID)))
}

func TestWithDoctorLock_HeldElsewhereTimesOut(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	l.wait = 30 * time.Millisecond
	doctorID := uuid.New()
	key := doctorLockKey(doctorID)
	require.NoError(t, mr.Set(key, "other-instance"))

	ran := false
	err := l.WithDoctorLock(context.Background(), doctorID, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, ran)

	held, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-instance", held)
}

func TestWithDoctorLock_OtherDoctorsAreIndependent(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	l.wait = 30 * time.Millisecond
	busy, free := uuid.New(), uuid.New()
	require.NoError(t, mr.Set(doctorLockKey(busy), "other-instance"))

	err := l.WithDoctorLock(context.Background(), free, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithDoctorLock_WaitersRunOneAtATime(t *testing.T) {
	l, _ := newTestLocker(t, 2*time.Second)
	doctorID := uuid.New()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		runs    int
		wg      sync.WaitGroup
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithDoctorLock(context.Background(), doctorID, func(context.Context) error {
				mu.Lock()
				inside++
				runs++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, runs)
	assert.Equal(t, 1, maxSeen)
}

func TestWithDoctorLock_ReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	doctorID := uuid.New()
	key := doctorLockKey(doctorID)

	err := l.WithDoctorLock(context.Background(), doctorID, func(context.Context) error {
		// Our key expired and another instance took the lock.
		return mr.Set(key, "other-instance")
	})
	require.NoError(t, err)

	held, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-instance", held)
}

func TestWithDoctorLock_RedisUnreachable(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	mr.Close()

	ran := false
	err := l.WithDoctorLock(context.Background(), uuid.New(), func(context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, ran)
}
