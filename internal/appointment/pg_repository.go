package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/motoshop/workshop-scheduling/internal/db"
)

// PgRepository runs against a pool or, inside a TxTransport, against the day's transaction.
type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

var appointmentColumns = []string{
	"id",
	"number",
	"client_id",
	"service_id",
	"mechanic_id",
	"scheduled_at",
	"duration_minutes",
	"notes",
	"status",
	"cancellation_reason",
	"confirmed_at",
	"cancelled_at",
	"completed_at",
	"created_at",
	"updated_at",
}

var returningAppointment = "RETURNING " + strings.Join(appointmentColumns, ", ")

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.ClientID,
		&a.ServiceID,
		&a.MechanicID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Notes,
		&a.Status,
		&a.CancellationReason,
		&a.ConfirmedAt,
		&a.CancelledAt,
		&a.CompletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) queryAppointments(ctx context.Context, b squirrel.SelectBuilder) ([]Appointment, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build appointment query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Collaborators

func (r *PgRepository) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	var c Client
	err := r.q.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) GetMechanic(ctx context.Context, id uuid.UUID) (*Mechanic, error) {
	var m Mechanic
	err := r.q.QueryRow(ctx, `
		SELECT id, name, active, created_at, updated_at
		FROM mechanics
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMechanicNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*ServiceItem, error) {
	var s ServiceItem
	err := r.q.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price_cents, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query, args, err := db.SQL.Select(appointmentColumns...).
		From("appointments").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get appointment: %w", err)
	}
	return scanAppointment(r.q.QueryRow(ctx, query, args...))
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	b := db.SQL.Select(appointmentColumns...).
		From("appointments").
		OrderBy("scheduled_at", "number")

	if !f.From.IsZero() {
		b = b.Where(squirrel.GtOrEq{"scheduled_at": f.From})
	}
	if !f.To.IsZero() {
		b = b.Where(squirrel.Lt{"scheduled_at": f.To})
	}
	if f.Status != nil {
		b = b.Where(squirrel.Eq{"status": string(*f.Status)})
	}
	if f.MechanicID != nil {
		b = b.Where(squirrel.Eq{"mechanic_id": *f.MechanicID})
	}
	if f.ClientID != nil {
		b = b.Where(squirrel.Eq{"client_id": *f.ClientID})
	}
	if f.ExcludeCancelled {
		b = b.Where(squirrel.NotEq{"status": string(StatusCancelled)})
	}

	return r.queryAppointments(ctx, b)
}

func (r *PgRepository) ListDay(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return r.ListAppointments(ctx, ListFilter{From: from, To: to, ExcludeCancelled: true})
}

func (r *PgRepository) InsertAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	query, args, err := db.SQL.Insert("appointments").
		Columns(
			"id",
			"client_id",
			"service_id",
			"mechanic_id",
			"scheduled_at",
			"duration_minutes",
			"notes",
			"status",
		).
		Values(
			uuid.New(),
			in.ClientID,
			in.ServiceID,
			in.MechanicID,
			in.ScheduledAt,
			in.DurationMinutes,
			in.Notes,
			string(StatusScheduled),
		).
		Suffix(returningAppointment).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert appointment: %w", err)
	}

	return scanAppointment(r.q.QueryRow(ctx, query, args...))
}

func (r *PgRepository) PatchAppointment(ctx context.Context, id uuid.UUID, allowed []Status, p Patch) (*Appointment, error) {
	statuses := make([]string, 0, len(allowed))
	for _, s := range allowed {
		statuses = append(statuses, string(s))
	}

	b := db.SQL.Update("appointments").
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": statuses}).
		Suffix(returningAppointment)

	if p.ScheduledAt != nil {
		b = b.Set("scheduled_at", *p.ScheduledAt)
	}
	if p.DurationMinutes != nil {
		b = b.Set("duration_minutes", *p.DurationMinutes)
	}
	if p.ClearMechanic {
		b = b.Set("mechanic_id", nil)
	} else if p.MechanicID != nil {
		b = b.Set("mechanic_id", *p.MechanicID)
	}
	if p.Notes != nil {
		b = b.Set("notes", *p.Notes)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build patch appointment: %w", err)
	}

	updated, err := scanAppointment(r.q.QueryRow(ctx, query, args...))
	if !errors.Is(err, ErrAppointmentNotFound) {
		return updated, err
	}

	// Nothing matched: either the row is gone or its status moved on.
	current, getErr := r.GetAppointment(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: appointment is %s", ErrLifecycleViolation, current.Status)
}

func (r *PgRepository) SaveTransition(ctx context.Context, from Status, next Appointment) (*Appointment, error) {
	query, args, err := db.SQL.Update("appointments").
		Set("status", string(next.Status)).
		Set("cancellation_reason", next.CancellationReason).
		Set("confirmed_at", next.ConfirmedAt).
		Set("cancelled_at", next.CancelledAt).
		Set("completed_at", next.CompletedAt).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": next.ID, "status": string(from)}).
		Suffix(returningAppointment).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build save transition: %w", err)
	}

	return scanAppointment(r.q.QueryRow(ctx, query, args...))
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ConfirmedWithoutWorkOrder(ctx context.Context, limit int) ([]Appointment, error) {
	b := db.SQL.Select(prefixed("a", appointmentColumns)...).
		From("appointments a").
		LeftJoin("work_orders w ON w.appointment_id = a.id").
		Where(squirrel.Eq{"a.status": string(StatusConfirmed), "w.id": nil}).
		OrderBy("a.confirmed_at").
		Limit(uint64(limit))

	return r.queryAppointments(ctx, b)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}
