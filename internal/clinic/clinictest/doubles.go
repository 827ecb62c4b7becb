package clinictest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue/internal/notify"
	redisclient "github.com/hackgods/clinic-queue/internal/redis"
)

// Locker runs fn directly. Set Busy to simulate a lock held elsewhere, or Err
// to simulate Redis being unreachable.
type Locker struct {
	Busy bool
	Err  error
}

func (l *Locker) WithDoctorLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	if l.Err != nil {
		return l.Err
	}
	if l.Busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

// Recorder is a notify.Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []notify.Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Event, len(r.events))
	copy(out, r.events)
	return out
}
