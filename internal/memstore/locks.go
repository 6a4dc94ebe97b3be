package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	redisclient "github.com/motoshop/workshop-scheduling/internal/redis"
	"github.com/motoshop/workshop-scheduling/internal/slots"
)

type dayLocks struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newDayLocks() *dayLocks {
	return &dayLocks{sems: make(map[string]chan struct{})}
}

func (d *dayLocks) sem(key string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.sems[key]
	if !ok {
		ch = make(chan struct{}, 1)
		d.sems[key] = ch
	}
	return ch
}

// acquire waits for key; wait <= 0 waits until ctx is done.
func (d *dayLocks) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	ch := d.sem(key)

	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timeout:
		return nil, redisclient.ErrLockNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transport serializes bookings per day in process, standing in for the postgres transaction.
func (s *Store) Transport() appointment.Transport {
	return transport{s}
}

type transport struct {
	s *Store
}

func (t transport) Name() string { return "memory" }

func (t transport) Exclusive(ctx context.Context, day time.Time, fn func(ctx context.Context, store appointment.DayStore) error) error {
	release, err := t.s.days.acquire(ctx, "booking:"+slots.DayKey(day), 0)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, t.s)
}

// Locker is an in process redisclient.Locker with the same wait semantics as the redis one.
type Locker struct {
	locks *dayLocks
	wait  time.Duration
}

func NewLocker(wait time.Duration) *Locker {
	return &Locker{locks: newDayLocks(), wait: wait}
}

func (l *Locker) WithDayLock(ctx context.Context, day string, fn func(ctx context.Context) error) error {
	release, err := l.locks.acquire(ctx, redisclient.DayLockKey(day), l.wait)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx)
}
