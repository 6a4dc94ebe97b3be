package appointment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/memstore"
	redisclient "github.com/motoshop/workshop-scheduling/internal/redis"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

var workshop = time.FixedZone("CST", -6*60*60)

type recorder struct {
	mu       sync.Mutex
	outcomes []string
	paths    []string
	degraded []string
}

func (r *recorder) BookingOutcome(outcome, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.paths = append(r.paths, path)
}

func (r *recorder) AvailabilityDegraded(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = append(r.degraded, reason)
}

type fixture struct {
	store  *memstore.Store
	repo   appointment.Repository
	booker *appointment.Booker
	svc    *appointment.Service
	av     *appointment.Availability
	rec    *recorder
	day    time.Time
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	repo       func(*memstore.Store) appointment.Repository
	transports func(*memstore.Store) []appointment.Transport
	orders     func(*memstore.Store) workorder.Creator
}

func withRepo(fn func(*memstore.Store) appointment.Repository) fixtureOption {
	return func(c *fixtureConfig) { c.repo = fn }
}

func withTransports(fn func(*memstore.Store) []appointment.Transport) fixtureOption {
	return func(c *fixtureConfig) { c.transports = fn }
}

func withOrders(fn func(*memstore.Store) workorder.Creator) fixtureOption {
	return func(c *fixtureConfig) { c.orders = fn }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{
		repo:       func(s *memstore.Store) appointment.Repository { return s },
		transports: func(s *memstore.Store) []appointment.Transport { return []appointment.Transport{s.Transport()} },
		orders:     func(s *memstore.Store) workorder.Creator { return s.WorkOrders() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memstore.New()
	repo := cfg.repo(store)
	rec := &recorder{}

	booker := appointment.NewBooker(repo, store.NightShift(), workshop, cfg.transports(store),
		appointment.WithRecorder(rec), appointment.WithTimeout(5*time.Second))

	return &fixture{
		store:  store,
		repo:   repo,
		booker: booker,
		svc:    appointment.NewService(repo, booker, cfg.orders(store)),
		av:     appointment.NewAvailability(repo, store.NightShift(), booker, rec),
		rec:    rec,
		day:    time.Date(2026, 3, 10, 0, 0, 0, 0, workshop),
	}
}

func (f *fixture) request(clientID uuid.UUID, slotKey string) appointment.BookingRequest {
	return appointment.BookingRequest{ClientID: clientID, Date: f.day, SlotKey: slotKey}
}

func (f *fixture) book(t *testing.T, req appointment.BookingRequest) *appointment.Appointment {
	t.Helper()
	res, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Appointment)
	return res.Appointment
}

func (f *fixture) newClient() uuid.UUID {
	return f.store.AddClient(fmt.Sprintf("client-%s", uuid.NewString()[:8])).ID
}

type brokenLocker struct{}

func (brokenLocker) WithDayLock(context.Context, string, func(context.Context) error) error {
	return fmt.Errorf("%w: dial tcp 127.0.0.1:6379: connect: connection refused", redisclient.ErrLockUnavailable)
}

type downTransport struct{}

func (downTransport) Name() string { return "down" }

func (downTransport) Exclusive(context.Context, time.Time, func(context.Context, appointment.DayStore) error) error {
	return fmt.Errorf("%w: begin tx: connection refused", appointment.ErrTransportUnavailable)
}

func TestBookCreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)
	client := f.newClient()

	res, err := f.svc.Book(context.Background(), appointment.BookingRequest{
		ClientID: client,
		Date:     f.day,
		SlotKey:  "1000-1100",
		Notes:    "chain noise",
	})
	require.NoError(t, err)

	a := res.Appointment
	assert.Equal(t, appointment.StatusScheduled, a.Status)
	assert.True(t, a.ScheduledAt.Equal(time.Date(2026, 3, 10, 10, 0, 0, 0, workshop)))
	assert.Equal(t, 60, a.DurationMinutes)
	assert.Equal(t, "chain noise", a.Notes)
	assert.Equal(t, int64(1), a.Number)
	assert.Equal(t, "memory", res.Path)
	assert.False(t, res.Duplicate)

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, appointment.EventAppointmentCreated, events[0].EventType)
}

func TestBookUsesServiceDuration(t *testing.T) {
	f := newFixture(t)
	svc := f.store.AddService("valve adjustment", 90, 120000)

	req := f.request(f.newClient(), "0930-1100")
	req.ServiceID = &svc.ID
	a := f.book(t, req)
	assert.Equal(t, 90, a.DurationMinutes)

	req = f.request(f.newClient(), "1000-1100")
	req.ServiceID = &svc.ID
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, appointment.ErrInvalidSlot, "hour keys do not exist for a 90 minute service")
}

func TestBookRequiresFields(t *testing.T) {
	f := newFixture(t)
	client := f.newClient()

	for name, req := range map[string]appointment.BookingRequest{
		"no client": {Date: f.day, SlotKey: "0800-0900"},
		"no date":   {ClientID: client, SlotKey: "0800-0900"},
		"no slot":   {ClientID: client, Date: f.day},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, appointment.ErrInvalidRequest)
		})
	}

	_, err := f.svc.Book(context.Background(), f.request(uuid.New(), "0800-0900"))
	assert.ErrorIs(t, err, appointment.ErrClientNotFound)
}

func TestBookRejectsUnknownSlot(t *testing.T) {
	f := newFixture(t)
	client := f.newClient()

	_, err := f.svc.Book(context.Background(), f.request(client, "0830-0930"))
	assert.ErrorIs(t, err, appointment.ErrInvalidSlot)

	_, err = f.svc.Book(context.Background(), f.request(client, "1830-1930"))
	assert.ErrorIs(t, err, appointment.ErrInvalidSlot, "night slots need the night shift")

	_, err = f.store.NightShift().Set(context.Background(), true)
	require.NoError(t, err)

	a := f.book(t, f.request(client, "1830-1930"))
	assert.Equal(t, 18, a.ScheduledAt.Hour())
	assert.Equal(t, 30, a.ScheduledAt.Minute())

	appts, err := f.svc.ListDay(context.Background(), f.day, appointment.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, appts, 1, "rejected bookings must not write")
}

func TestBookSlotFull(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.book(t, f.request(f.newClient(), "1400-1500"))
	}

	_, err := f.svc.Book(context.Background(), f.request(f.newClient(), "1400-1500"))
	assert.ErrorIs(t, err, appointment.ErrSlotFull)

	f.book(t, f.request(f.newClient(), "1500-1600"))
	assert.Contains(t, f.rec.outcomes, appointment.OutcomeSlotFull)
}

func TestBookSlotFullFromOverlappingAppointments(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		req := f.request(f.newClient(), "0800-1000")
		req.DurationMinutes = 120
		f.book(t, req)
	}

	_, err := f.svc.Book(context.Background(), f.request(f.newClient(), "0900-1000"))
	assert.ErrorIs(t, err, appointment.ErrSlotFull, "three jobs are still running at 09:00")

	day, err := f.av.ForDay(context.Background(), appointment.AvailabilityQuery{Date: f.day})
	require.NoError(t, err)
	for _, s := range day.Slots[:2] {
		assert.True(t, s.Full, s.Slot.Key)
		assert.Zero(t, s.Available, s.Slot.Key)
	}
	assert.Zero(t, day.Slots[1].Occupied, "occupied still counts starts only")

	f.book(t, f.request(f.newClient(), "1000-1100"))
}

func TestBookRaceForLastSeat(t *testing.T) {
	f := newFixture(t)

	for round := 0; round < 10; round++ {
		key := fmt.Sprintf("%02d00-%02d00", 8+round, 9+round)
		f.book(t, f.request(f.newClient(), key))
		f.book(t, f.request(f.newClient(), key))

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 2)
		)
		for i := range errs {
			req := f.request(f.newClient(), key)
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Book(context.Background(), req)
			}(i)
		}
		close(start)
		wg.Wait()

		succeeded, full := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, appointment.ErrSlotFull):
				full++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded, "slot %s", key)
		assert.Equal(t, 1, full, "slot %s", key)
	}

	day, err := f.av.ForDay(context.Background(), appointment.AvailabilityQuery{Date: f.day})
	require.NoError(t, err)
	for _, s := range day.Slots {
		assert.Equal(t, 3, s.Occupied, s.Slot.Key)
		assert.True(t, s.Full, s.Slot.Key)
	}
}

func TestBookMechanicConflict(t *testing.T) {
	f := newFixture(t)
	mechanic := f.store.AddMechanic("Rosa", true)

	req := f.request(f.newClient(), "1000-1100")
	req.MechanicID = &mechanic.ID
	f.book(t, req)

	req = f.request(f.newClient(), "1000-1100")
	req.MechanicID = &mechanic.ID
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, appointment.ErrMechanicConflict, "seats are free but the mechanic is not")

	req = f.request(f.newClient(), "1100-1200")
	req.MechanicID = &mechanic.ID
	f.book(t, req)
}

func TestBookMechanicConflictAcrossDurations(t *testing.T) {
	f := newFixture(t)
	mechanic := f.store.AddMechanic("Rosa", true)

	long := f.request(f.newClient(), "0930-1100")
	long.DurationMinutes = 90
	long.MechanicID = &mechanic.ID
	f.book(t, long)

	req := f.request(f.newClient(), "1000-1100")
	req.MechanicID = &mechanic.ID
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, appointment.ErrMechanicConflict)
}

func TestBookRejectsInactiveMechanic(t *testing.T) {
	f := newFixture(t)
	mechanic := f.store.AddMechanic("Beto", false)

	req := f.request(f.newClient(), "1000-1100")
	req.MechanicID = &mechanic.ID
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, appointment.ErrInvalidRequest)

	unknown := uuid.New()
	req.MechanicID = &unknown
	_, err = f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, appointment.ErrMechanicNotFound)
}

func TestBookRetryReturnsExistingAppointment(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.newClient(), "0800-0900")

	first, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)

	second, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Appointment.ID, second.Appointment.ID)

	day, err := f.av.ForDay(context.Background(), appointment.AvailabilityQuery{Date: f.day})
	require.NoError(t, err)
	assert.Equal(t, 1, day.Slots[0].Occupied)
}

func TestBookFallsBackWhenLockIsUnavailable(t *testing.T) {
	f := newFixture(t, withTransports(func(s *memstore.Store) []appointment.Transport {
		return []appointment.Transport{
			appointment.NewLockedTransport(brokenLocker{}, s.Transport()),
			s.Transport(),
		}
	}))

	for i := 0; i < 3; i++ {
		res, err := f.svc.Book(context.Background(), f.request(f.newClient(), "0900-1000"))
		require.NoError(t, err)
		assert.Equal(t, "memory", res.Path)
	}

	_, err := f.svc.Book(context.Background(), f.request(f.newClient(), "0900-1000"))
	assert.ErrorIs(t, err, appointment.ErrSlotFull, "the fallback path runs the same capacity check")
}

func TestBookFallsBackWhenDayLockIsBusy(t *testing.T) {
	locker := memstore.NewLocker(20 * time.Millisecond)
	f := newFixture(t, withTransports(func(s *memstore.Store) []appointment.Transport {
		return []appointment.Transport{
			appointment.NewLockedTransport(locker, s.Transport()),
			s.Transport(),
		}
	}))

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = locker.WithDayLock(context.Background(), "2026-03-10", func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	res, err := f.svc.Book(context.Background(), f.request(f.newClient(), "0900-1000"))
	require.NoError(t, err)
	assert.Equal(t, "memory", res.Path)

	res, err = f.svc.Book(context.Background(), f.request(f.newClient(), "0900-1000"))
	require.NoError(t, err)
	assert.Equal(t, "memory", res.Path)
}

func TestBookUsesLockedPathFirst(t *testing.T) {
	f := newFixture(t, withTransports(func(s *memstore.Store) []appointment.Transport {
		return []appointment.Transport{
			appointment.NewLockedTransport(memstore.NewLocker(time.Second), s.Transport()),
			s.Transport(),
		}
	}))

	res, err := f.svc.Book(context.Background(), f.request(f.newClient(), "0900-1000"))
	require.NoError(t, err)
	assert.Equal(t, "redis+memory", res.Path)
}

func TestBookWithoutAnyTransport(t *testing.T) {
	f := newFixture(t, withTransports(func(*memstore.Store) []appointment.Transport {
		return []appointment.Transport{downTransport{}, downTransport{}}
	}))

	_, err := f.svc.Book(context.Background(), f.request(f.newClient(), "0900-1000"))
	require.ErrorIs(t, err, appointment.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, appointment.ErrSlotFull)
	assert.Equal(t, []string{appointment.OutcomeUnavailable}, f.rec.outcomes)
}

func TestRescheduleRevalidates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.book(t, f.request(f.newClient(), "1300-1400"))
	}
	a := f.book(t, f.request(f.newClient(), "0800-0900"))

	_, err := f.svc.Reschedule(context.Background(), a.ID, f.day, "1300-1400")
	assert.ErrorIs(t, err, appointment.ErrSlotFull)

	_, err = f.svc.Reschedule(context.Background(), a.ID, f.day, "1330-1430")
	assert.ErrorIs(t, err, appointment.ErrInvalidSlot)

	_, err = f.svc.Confirm(context.Background(), a.ID)
	require.NoError(t, err)

	next := f.day.AddDate(0, 0, 1)
	moved, err := f.svc.Reschedule(context.Background(), a.ID, next, "1300-1400")
	require.NoError(t, err)
	assert.True(t, moved.ScheduledAt.Equal(time.Date(2026, 3, 11, 13, 0, 0, 0, workshop)))
	assert.Equal(t, appointment.StatusConfirmed, moved.Status)
}

func TestRescheduleWithinOwnSlot(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.request(f.newClient(), "1300-1400"))
	f.book(t, f.request(f.newClient(), "1300-1400"))
	a := f.book(t, f.request(f.newClient(), "1300-1400"))

	_, err := f.svc.Reschedule(context.Background(), a.ID, f.day, "1300-1400")
	assert.NoError(t, err, "an appointment does not compete with itself")
}

func TestRescheduleTerminal(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.request(f.newClient(), "0800-0900"))

	_, err := f.svc.Cancel(context.Background(), a.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), a.ID, f.day, "0900-1000")
	assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)
}
