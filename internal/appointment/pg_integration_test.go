//go:build integration

package appointment_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/db"
	"github.com/motoshop/workshop-scheduling/internal/settings"
	"github.com/motoshop/workshop-scheduling/internal/slots"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

// Run with: POSTGRES_DSN=postgres://... go test -tags integration ./internal/...

type pgFixture struct {
	pool *pgxpool.Pool
	repo *appointment.PgRepository
	svc  *appointment.Service
	day  time.Time
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	// Each test books on its own far-future day so runs against a shared database do not collide.
	day := time.Date(2031, 1, 1, 0, 0, 0, 0, workshop).AddDate(0, 0, gofakeit.Number(0, 20000))
	from, to := slots.DayBounds(day)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(),
			`DELETE FROM appointments WHERE scheduled_at >= $1 AND scheduled_at < $2`, from, to)
	})

	repo := appointment.NewPgRepository(pool)
	booker := appointment.NewBooker(repo, settings.NewPgStore(pool), workshop,
		[]appointment.Transport{appointment.NewTxTransport(pool)},
		appointment.WithTimeout(10*time.Second))

	return &pgFixture{
		pool: pool,
		repo: repo,
		svc:  appointment.NewService(repo, booker, workorder.NewPgCreator(pool)),
		day:  day,
	}
}

func (f *pgFixture) newClient(t *testing.T) uuid.UUID {
	t.Helper()

	query, args, err := db.SQL.Insert("clients").
		Columns("name", "phone").
		Values(gofakeit.Name(), gofakeit.Phone()).
		Suffix("RETURNING id").
		ToSql()
	require.NoError(t, err)

	var id uuid.UUID
	require.NoError(t, f.pool.QueryRow(context.Background(), query, args...).Scan(&id))
	return id
}

func (f *pgFixture) book(t *testing.T, slotKey string) *appointment.Appointment {
	t.Helper()
	res, err := f.svc.Book(context.Background(), appointment.BookingRequest{
		ClientID: f.newClient(t),
		Date:     f.day,
		SlotKey:  slotKey,
	})
	require.NoError(t, err)
	return res.Appointment
}

func TestPgBookRaceForLastSeat(t *testing.T) {
	f := newPgFixture(t)
	f.book(t, "1000-1100")
	f.book(t, "1000-1100")

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 4)
	)
	for i := range errs {
		req := appointment.BookingRequest{ClientID: f.newClient(t), Date: f.day, SlotKey: "1000-1100"}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Book(context.Background(), req)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, appointment.ErrSlotFull)
	}
	assert.Equal(t, 1, succeeded, "the day lock lets exactly one booking take the last seat")

	from, to := slots.DayBounds(f.day)
	appts, err := f.repo.ListDay(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, appts, 3)
}

func TestPgBookOverlappingAppointments(t *testing.T) {
	f := newPgFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Book(context.Background(), appointment.BookingRequest{
			ClientID:        f.newClient(t),
			Date:            f.day,
			SlotKey:         "0800-1000",
			DurationMinutes: 120,
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Book(context.Background(), appointment.BookingRequest{
		ClientID: f.newClient(t),
		Date:     f.day,
		SlotKey:  "0900-1000",
	})
	assert.ErrorIs(t, err, appointment.ErrSlotFull)
}

func TestPgSaveTransitionRequiresCurrentStatus(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	a := f.book(t, "1300-1400")

	confirmed, err := appointment.Transition(*a, appointment.StatusConfirmed, time.Now())
	require.NoError(t, err)
	saved, err := f.repo.SaveTransition(ctx, appointment.StatusScheduled, confirmed)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, saved.Status)
	assert.NotNil(t, saved.ConfirmedAt)

	// A writer that still believes the row is scheduled must miss.
	cancelled, err := appointment.Transition(*a, appointment.StatusCancelled, time.Now())
	require.NoError(t, err)
	_, err = f.repo.SaveTransition(ctx, appointment.StatusScheduled, cancelled)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	got, err := f.repo.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)

	notes := "late"
	_, err = f.repo.PatchAppointment(ctx, a.ID, []appointment.Status{appointment.StatusScheduled}, appointment.Patch{Notes: &notes})
	assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)

	_, err = f.repo.PatchAppointment(ctx, uuid.New(), []appointment.Status{appointment.StatusScheduled}, appointment.Patch{Notes: &notes})
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestPgConfirmCreatesOneWorkOrder(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	a := f.book(t, "1500-1600")

	conf, err := f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, conf.WorkOrder)
	assert.Equal(t, a.ID, conf.WorkOrder.AppointmentID)
	assert.Equal(t, workorder.StatusOpen, conf.WorkOrder.Status)

	again, err := workorder.NewPgCreator(f.pool).Create(ctx, workorder.Request{AppointmentID: a.ID, ClientID: a.ClientID})
	require.NoError(t, err)
	assert.Equal(t, conf.WorkOrder.ID, again.ID, "a second create returns the existing order")

	_, err = f.svc.Confirm(ctx, a.ID)
	assert.ErrorIs(t, err, appointment.ErrLifecycleViolation)

	pending, err := f.repo.ConfirmedWithoutWorkOrder(ctx, 1000)
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, a.ID, p.ID)
	}
}
