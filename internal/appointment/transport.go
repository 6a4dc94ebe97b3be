package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	redisclient "github.com/motoshop/workshop-scheduling/internal/redis"
	"github.com/motoshop/workshop-scheduling/internal/slots"
)

// TxTransport serializes bookings of one day inside postgres: every booking
// transaction takes a transaction scoped advisory lock on the day key before it
// reads occupancy, so check and insert commit as one unit per day.
type TxTransport struct {
	pool *pgxpool.Pool
}

func NewTxTransport(pool *pgxpool.Pool) *TxTransport {
	return &TxTransport{pool: pool}
}

func (t *TxTransport) Name() string { return "postgres" }

func (t *TxTransport) Exclusive(ctx context.Context, day time.Time, fn func(ctx context.Context, store DayStore) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrTransportUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "booking:"+slots.DayKey(day)); err != nil {
		return fmt.Errorf("%w: advisory lock: %v", ErrTransportUnavailable, err)
	}

	if err := fn(ctx, NewPgRepository(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit booking: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LockedTransport takes the distributed day lock and then runs next under it.
type LockedTransport struct {
	locker redisclient.Locker
	next   Transport
}

func NewLockedTransport(locker redisclient.Locker, next Transport) *LockedTransport {
	return &LockedTransport{locker: locker, next: next}
}

func (t *LockedTransport) Name() string { return "redis+" + t.next.Name() }

func (t *LockedTransport) Exclusive(ctx context.Context, day time.Time, fn func(ctx context.Context, store DayStore) error) error {
	err := t.locker.WithDayLock(ctx, slots.DayKey(day), func(lockCtx context.Context) error {
		return t.next.Exclusive(lockCtx, day, fn)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, redisclient.ErrLockUnavailable) {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return err
}
