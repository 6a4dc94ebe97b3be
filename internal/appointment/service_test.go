package appointment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/memstore"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

type failingOrders struct{}

func (failingOrders) Create(context.Context, workorder.Request) (*workorder.Order, error) {
	return nil, errors.New("work order service timed out")
}

type failingDayReads struct {
	appointment.Repository
}

func (failingDayReads) ListDay(context.Context, time.Time, time.Time) ([]appointment.Appointment, error) {
	return nil, errors.New("read tcp: connection reset by peer")
}

func TestConfirmCreatesWorkOrder(t *testing.T) {
	f := newFixture(t)
	svc := f.store.AddService("oil change", 60, 45000)

	req := f.request(f.newClient(), "0800-0900")
	req.ServiceID = &svc.ID
	a := f.book(t, req)

	res, err := f.svc.Confirm(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, res.Appointment.Status)
	require.NotNil(t, res.Appointment.ConfirmedAt)
	require.NotNil(t, res.WorkOrder)
	assert.Equal(t, a.ID, res.WorkOrder.AppointmentID)
	assert.Equal(t, &svc.ID, res.WorkOrder.ServiceID)

	order, ok := f.store.WorkOrderFor(a.ID)
	require.True(t, ok)
	assert.Equal(t, res.WorkOrder.ID, order.ID)
}

func TestConfirmSurfacesWorkOrderFailure(t *testing.T) {
	f := newFixture(t, withOrders(func(*memstore.Store) workorder.Creator { return failingOrders{} }))
	a := f.book(t, f.request(f.newClient(), "0800-0900"))

	res, err := f.svc.Confirm(context.Background(), a.ID)
	require.ErrorIs(t, err, appointment.ErrWorkOrderFailed)
	require.NotNil(t, res.Appointment, "the confirmed appointment comes back with the error")
	assert.Equal(t, appointment.StatusConfirmed, res.Appointment.Status)
	assert.Nil(t, res.WorkOrder)

	stored, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, stored.Status, "confirmation is not rolled back")

	var types []string
	for _, ev := range f.store.Events() {
		types = append(types, ev.EventType)
	}
	assert.Contains(t, types, appointment.EventWorkOrderFailed)
}

func TestReconcileWorkOrders(t *testing.T) {
	store := memstore.New()
	booker := appointment.NewBooker(store, store.NightShift(), workshop, []appointment.Transport{store.Transport()})
	broken := appointment.NewService(store, booker, failingOrders{})
	healthy := appointment.NewService(store, booker, store.WorkOrders())

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, workshop)
	var ids []uuid.UUID
	for _, key := range []string{"0800-0900", "0900-1000"} {
		res, err := broken.Book(context.Background(), appointment.BookingRequest{
			ClientID: store.AddClient("Ana").ID, Date: day, SlotKey: key,
		})
		require.NoError(t, err)
		_, err = broken.Confirm(context.Background(), res.Appointment.ID)
		require.ErrorIs(t, err, appointment.ErrWorkOrderFailed)
		ids = append(ids, res.Appointment.ID)
	}

	n, err := healthy.ReconcileWorkOrders(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, id := range ids {
		_, ok := store.WorkOrderFor(id)
		assert.True(t, ok)
	}

	n, err = healthy.ReconcileWorkOrders(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancelFreesSeat(t *testing.T) {
	f := newFixture(t)
	var last *appointment.Appointment
	for i := 0; i < 3; i++ {
		last = f.book(t, f.request(f.newClient(), "1100-1200"))
	}

	before := slotAt(t, f, "1100-1200")
	assert.Equal(t, 3, before.Occupied)
	assert.True(t, before.Full)

	cancelled, err := f.svc.Cancel(context.Background(), last.ID, "client called")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "client called", *cancelled.CancellationReason)

	after := slotAt(t, f, "1100-1200")
	assert.Equal(t, 2, after.Occupied)
	assert.False(t, after.Full)

	f.book(t, f.request(f.newClient(), "1100-1200"))
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := f.book(t, f.request(f.newClient(), "0800-0900"))
	_, err := f.svc.Cancel(ctx, cancelled.ID, "")
	require.NoError(t, err)

	completed := f.book(t, f.request(f.newClient(), "0900-1000"))
	_, err = f.svc.Confirm(ctx, completed.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, completed.ID)
	require.NoError(t, err)

	for _, a := range []*appointment.Appointment{cancelled, completed} {
		before, err := f.svc.Get(ctx, a.ID)
		require.NoError(t, err)

		_, err = f.svc.Confirm(ctx, a.ID)
		assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)
		_, err = f.svc.Cancel(ctx, a.ID, "again")
		assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)
		_, err = f.svc.Complete(ctx, a.ID)
		assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)

		after, err := f.svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

func TestCompleteRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.request(f.newClient(), "0800-0900"))

	_, err := f.svc.Complete(context.Background(), a.ID)
	assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)
}

func TestUpdateWhileScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rosa := f.store.AddMechanic("Rosa", true)
	beto := f.store.AddMechanic("Beto", true)

	busy := f.request(f.newClient(), "1000-1100")
	busy.MechanicID = &beto.ID
	f.book(t, busy)

	a := f.book(t, f.request(f.newClient(), "1000-1100"))

	notes := "bring spare key"
	updated, err := f.svc.Update(ctx, a.ID, appointment.Patch{Notes: &notes, MechanicID: &rosa.ID})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, &rosa.ID, updated.MechanicID)

	_, err = f.svc.Update(ctx, a.ID, appointment.Patch{MechanicID: &beto.ID})
	assert.ErrorIs(t, err, appointment.ErrMechanicConflict)

	_, err = f.svc.Update(ctx, a.ID, appointment.Patch{DurationMinutes: ptr(90)})
	assert.ErrorIs(t, err, appointment.ErrInvalidSlot, "10:00 is not a 90 minute boundary")

	updated, err = f.svc.Update(ctx, a.ID, appointment.Patch{DurationMinutes: ptr(120)})
	require.NoError(t, err)
	assert.Equal(t, 120, updated.DurationMinutes)

	_, err = f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, a.ID, appointment.Patch{Notes: &notes})
	assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)
}

func TestUpdateRejectsMove(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.request(f.newClient(), "1000-1100"))

	at := a.ScheduledAt.Add(time.Hour)
	_, err := f.svc.Update(context.Background(), a.ID, appointment.Patch{ScheduledAt: &at})
	assert.ErrorIs(t, err, appointment.ErrInvalidRequest)
}

func TestDeleteIsUnconditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.book(t, f.request(f.newClient(), "0800-0900"))
	_, err := f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, a.ID))

	_, err = f.svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, a.ID), appointment.ErrAppointmentNotFound)
}

func TestListDayFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rosa := f.store.AddMechanic("Rosa", true)

	withMechanic := f.request(f.newClient(), "0800-0900")
	withMechanic.MechanicID = &rosa.ID
	f.book(t, withMechanic)
	b := f.book(t, f.request(f.newClient(), "0900-1000"))
	_, err := f.svc.Cancel(ctx, b.ID, "")
	require.NoError(t, err)

	next := f.request(f.newClient(), "0900-1000")
	next.Date = f.day.AddDate(0, 0, 1)
	f.book(t, next)

	all, err := f.svc.ListDay(ctx, f.day, appointment.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cancelled, err := f.svc.ListDay(ctx, f.day, appointment.ListFilter{Status: ptr(appointment.StatusCancelled)})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, b.ID, cancelled[0].ID)

	mine, err := f.svc.ListDay(ctx, f.day, appointment.ListFilter{MechanicID: &rosa.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func ptr[T any](v T) *T { return &v }
