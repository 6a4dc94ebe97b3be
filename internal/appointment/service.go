package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
	EventWorkOrderFailed        = "WORK_ORDER_FAILED"
	EventWorkOrderCreated       = "WORK_ORDER_CREATED"
)

type Service struct {
	repo   Repository
	booker *Booker
	orders workorder.Creator
	now    func() time.Time
}

func NewService(repo Repository, booker *Booker, orders workorder.Creator) *Service {
	return &Service{
		repo:   repo,
		booker: booker,
		orders: orders,
		now:    time.Now,
	}
}

// Book creates a scheduled appointment. A retried request for the same client and start
// returns the appointment that is already there.
func (s *Service) Book(ctx context.Context, req BookingRequest) (Booking, error) {
	res, err := s.booker.Book(ctx, req)
	if err != nil {
		return res, err
	}
	if !res.Duplicate {
		s.logEvent(ctx, res.Appointment.ID, EventAppointmentCreated, map[string]any{
			"client_id":    res.Appointment.ClientID.String(),
			"scheduled_at": res.Appointment.ScheduledAt,
			"duration":     res.Appointment.DurationMinutes,
			"path":         res.Path,
		})
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, lookupErr("appointment", err, ErrAppointmentNotFound)
	}
	return a, nil
}

// ListDay returns the appointments of one local calendar day, cancelled ones included
// unless the filter asks otherwise.
func (s *Service) ListDay(ctx context.Context, date time.Time, f ListFilter) ([]Appointment, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	day := s.booker.LocalDay(date)
	f.From = day
	f.To = day.AddDate(0, 0, 1)

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list appointments: %v", ErrStoreUnavailable, err)
	}
	return appts, nil
}

// Update edits mechanic, duration or notes while the appointment is still scheduled.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	if p.ScheduledAt != nil {
		return nil, fmt.Errorf("%w: use reschedule to move an appointment", ErrInvalidRequest)
	}
	if p.Empty() {
		return s.Get(ctx, id)
	}

	updated, err := s.booker.Amend(ctx, id, p)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentUpdated, patchPayload(p))
	return updated, nil
}

func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slotKey string) (*Appointment, error) {
	updated, err := s.booker.Reschedule(ctx, id, date, slotKey)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
		"scheduled_at": updated.ScheduledAt,
		"slot":         slotKey,
	})
	return updated, nil
}

type Confirmation struct {
	Appointment *Appointment
	WorkOrder   *workorder.Order
}

// Confirm moves a scheduled appointment to confirmed and then asks for its work order.
// The confirmation stays even when the work order fails; that failure comes back as
// ErrWorkOrderFailed next to the confirmed appointment and the reconciler retries it later.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (Confirmation, error) {
	confirmed, err := s.transition(ctx, id, StatusConfirmed, nil)
	if err != nil {
		return Confirmation{}, err
	}
	s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{})

	order, err := s.createWorkOrder(ctx, confirmed)
	if err != nil {
		return Confirmation{Appointment: confirmed}, fmt.Errorf("%w: %v", ErrWorkOrderFailed, err)
	}
	return Confirmation{Appointment: confirmed, WorkOrder: order}, nil
}

// Cancel frees the appointment's seat. Occupancy is computed live so the status write is enough.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var r *string
	if reason != "" {
		r = &reason
	}

	cancelled, err := s.transition(ctx, id, StatusCancelled, r)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{"reason": reason})
	return cancelled, nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	completed, err := s.transition(ctx, id, StatusCompleted, nil)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{})
	return completed, nil
}

// Delete removes the appointment whatever its status. It cannot be undone.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return storeErr("delete appointment", err)
	}

	log.Printf("appointment deleted id=%s", id)
	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{})
	return nil
}

// ReconcileWorkOrders creates the work orders that confirmations failed to create.
// It is intended to be called by the worker periodically and returns how many were created.
func (s *Service) ReconcileWorkOrders(ctx context.Context, batch int) (int, error) {
	pending, err := s.repo.ConfirmedWithoutWorkOrder(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("find confirmed appointments without work order: %w", err)
	}

	created := 0
	for i := range pending {
		if _, err := s.createWorkOrder(ctx, &pending[i]); err != nil {
			continue
		}
		created++
	}
	return created, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, reason *string) (*Appointment, error) {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, lookupErr("appointment", err, ErrAppointmentNotFound)
	}

	next, err := Transition(*current, to, s.now())
	if err != nil {
		return nil, err
	}
	next.CancellationReason = reason

	saved, err := s.repo.SaveTransition(ctx, current.Status, next)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("%w: save transition: %v", ErrStoreUnavailable, err)
	}

	// The conditional update missed: deleted, or another writer moved the status first.
	latest, getErr := s.repo.GetAppointment(ctx, id)
	if getErr != nil {
		return nil, lookupErr("appointment", getErr, ErrAppointmentNotFound)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrLifecycleViolation, latest.Status, to)
}

func (s *Service) createWorkOrder(ctx context.Context, a *Appointment) (*workorder.Order, error) {
	order, err := s.orders.Create(ctx, workorder.Request{
		AppointmentID:     a.ID,
		AppointmentNumber: a.Number,
		ClientID:          a.ClientID,
		ServiceID:         a.ServiceID,
		MechanicID:        a.MechanicID,
		ScheduledAt:       a.ScheduledAt,
	})
	if err != nil {
		log.Printf("work order creation failed appointment=%s err=%v", a.ID, err)
		s.logEvent(ctx, a.ID, EventWorkOrderFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	s.logEvent(ctx, a.ID, EventWorkOrderCreated, map[string]any{"work_order_id": order.ID.String()})
	return order, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

func patchPayload(p Patch) map[string]any {
	out := map[string]any{}
	if p.DurationMinutes != nil {
		out["duration"] = *p.DurationMinutes
	}
	if p.ClearMechanic {
		out["mechanic_id"] = nil
	} else if p.MechanicID != nil {
		out["mechanic_id"] = p.MechanicID.String()
	}
	if p.Notes != nil {
		out["notes"] = *p.Notes
	}
	return out
}
