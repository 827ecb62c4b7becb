package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("doctor queue lock not acquired")
)

// Locker guards per-doctor critical sections across API instances.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

const defaultRetryInterval = 25 * time.Millisecond

// DoctorLocker holds one Redis key per doctor. A caller that finds the key
// taken polls until the holder releases it or the wait runs out.
type DoctorLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisDoctorLocker returns a locker whose keys expire after ttl. Callers
// wait up to ttl for a held lock, which is also the longest a holder can keep it.
func NewRedisDoctorLocker(client *redis.Client, ttl time.Duration) *DoctorLocker {
	return &DoctorLocker{
		client: client,
		ttl:    ttl,
		wait:   ttl,
		retry:  defaultRetryInterval,
	}
}

func doctorLockKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("lock:doctor-queue:%s", doctorID.String())
}

func (l *DoctorLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	key := doctorLockKey(doctorID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	held, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(held)
}

func (l *DoctorLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire doctor lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(l.retry).Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Deletes the key only while it still carries our token, so an expired lock
// re-taken by another instance is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *DoctorLocker) release(ctx context.Context, key, token string) error {
	if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release doctor lock: %w", err)
	}
	return nil
}
