package appointment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/slots"
)

// Booking outcomes as reported to the Recorder.
const (
	OutcomeBooked           = "booked"
	OutcomeDuplicate        = "duplicate"
	OutcomeInvalid          = "invalid"
	OutcomeSlotFull         = "slot_full"
	OutcomeMechanicConflict = "mechanic_conflict"
	OutcomeUnavailable      = "unavailable"
	OutcomeError            = "error"
)

type BookingRequest struct {
	ClientID uuid.UUID
	// Date is a calendar day; only its year, month and day are used.
	Date            time.Time
	SlotKey         string
	DurationMinutes int // 0 means take it from the service
	MechanicID      *uuid.UUID
	ServiceID       *uuid.UUID
	Notes           string
}

type Booking struct {
	Appointment *Appointment
	// Duplicate is set when the same client already held this start and nothing new was written.
	Duplicate bool
	// Path names the transport that committed.
	Path string
}

// Booker is the single admission routine for anything that puts an appointment
// into a slot. It walks its transports in order and only moves on when one
// reports ErrTransportUnavailable, so every path runs the same checks.
type Booker struct {
	repo       Repository
	night      NightShiftSource
	transports []Transport
	loc        *time.Location
	timeout    time.Duration
	rec        Recorder
}

type BookerOption func(*Booker)

func WithRecorder(rec Recorder) BookerOption {
	return func(b *Booker) {
		if rec != nil {
			b.rec = rec
		}
	}
}

// WithTimeout bounds one booking attempt including waits for the day lock.
func WithTimeout(d time.Duration) BookerOption {
	return func(b *Booker) { b.timeout = d }
}

func NewBooker(repo Repository, night NightShiftSource, loc *time.Location, transports []Transport, opts ...BookerOption) *Booker {
	if loc == nil {
		loc = time.Local
	}
	b := &Booker{
		repo:       repo,
		night:      night,
		transports: transports,
		loc:        loc,
		rec:        nopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Location is the workshop time zone slots are generated in.
func (b *Booker) Location() *time.Location { return b.loc }

// LocalDay maps a calendar date onto local midnight in the workshop zone.
func (b *Booker) LocalDay(date time.Time) time.Time {
	if date.IsZero() {
		return time.Time{}
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, b.loc)
}

// Book validates req against live occupancy and persists a scheduled appointment.
func (b *Booker) Book(ctx context.Context, req BookingRequest) (Booking, error) {
	res, err := b.book(ctx, req)
	b.rec.BookingOutcome(outcomeOf(res, err), res.Path)
	return res, err
}

func (b *Booker) book(ctx context.Context, req BookingRequest) (Booking, error) {
	if req.ClientID == uuid.Nil || req.Date.IsZero() || req.SlotKey == "" {
		return Booking{}, fmt.Errorf("%w: client, date and slot are required", ErrInvalidRequest)
	}

	if _, err := b.repo.GetClient(ctx, req.ClientID); err != nil {
		return Booking{}, lookupErr("client", err, ErrClientNotFound)
	}

	var svc *ServiceItem
	if req.ServiceID != nil {
		s, err := b.repo.GetService(ctx, *req.ServiceID)
		if err != nil {
			return Booking{}, lookupErr("service", err, ErrServiceNotFound)
		}
		svc = s
	}

	if req.MechanicID != nil {
		if err := b.checkMechanic(ctx, *req.MechanicID); err != nil {
			return Booking{}, err
		}
	}

	day := b.LocalDay(req.Date)
	duration := EffectiveDuration(req.DurationMinutes, svc)

	night, err := b.night.Get(ctx)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: read night shift: %v", ErrStoreUnavailable, err)
	}

	slot, ok := slots.Resolve(day, duration, night.Enabled, req.SlotKey)
	if !ok {
		return Booking{}, fmt.Errorf("%w: %s on %s", ErrInvalidSlot, req.SlotKey, slots.DayKey(day))
	}

	var res Booking
	path, err := b.exclusive(ctx, day, func(ctx context.Context, store DayStore) error {
		from, to := slots.DayBounds(day)
		appts, err := store.ListDay(ctx, from, to)
		if err != nil {
			return fmt.Errorf("%w: list day: %v", ErrStoreUnavailable, err)
		}

		for i := range appts {
			a := appts[i]
			if a.ClientID == req.ClientID && a.Status.Occupies() && a.ScheduledAt.Equal(slot.Start) {
				res = Booking{Appointment: &a, Duplicate: true}
				return nil
			}
		}

		if err := admit(slot, appts, uuid.Nil, req.MechanicID); err != nil {
			return err
		}

		created, err := store.InsertAppointment(ctx, NewAppointment{
			ClientID:        req.ClientID,
			ServiceID:       req.ServiceID,
			MechanicID:      req.MechanicID,
			ScheduledAt:     slot.Start,
			DurationMinutes: slot.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			return fmt.Errorf("%w: insert appointment: %v", ErrStoreUnavailable, err)
		}
		res = Booking{Appointment: created}
		return nil
	})
	res.Path = path
	if err != nil {
		return res, err
	}
	return res, nil
}

// Reschedule moves a scheduled or confirmed appointment to another slot,
// re-validated exactly like a fresh booking with the appointment itself left out.
func (b *Booker) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slotKey string) (*Appointment, error) {
	if date.IsZero() || slotKey == "" {
		return nil, fmt.Errorf("%w: date and slot are required", ErrInvalidRequest)
	}

	current, err := b.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, lookupErr("appointment", err, ErrAppointmentNotFound)
	}
	if current.Status != StatusScheduled && current.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrLifecycleViolation, current.Status)
	}

	day := b.LocalDay(date)
	night, err := b.night.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read night shift: %v", ErrStoreUnavailable, err)
	}

	slot, ok := slots.Resolve(day, current.DurationMinutes, night.Enabled, slotKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrInvalidSlot, slotKey, slots.DayKey(day))
	}

	start := slot.Start
	patch := Patch{ScheduledAt: &start}
	return b.amend(ctx, current, slot, patch, []Status{StatusScheduled, StatusConfirmed})
}

// Amend applies a field update to a scheduled appointment. A change of mechanic or
// duration re-runs admission for the appointment's start, since either can break capacity
// or the mechanic rule.
func (b *Booker) Amend(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	current, err := b.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, lookupErr("appointment", err, ErrAppointmentNotFound)
	}
	if current.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: only scheduled appointments can be edited, this one is %s", ErrLifecycleViolation, current.Status)
	}

	if p.DurationMinutes != nil {
		d := slots.ClampDuration(*p.DurationMinutes)
		p.DurationMinutes = &d
	}

	if p.DurationMinutes == nil && (p.MechanicID == nil || p.ClearMechanic) {
		updated, err := b.repo.PatchAppointment(ctx, id, []Status{StatusScheduled}, p)
		if err != nil {
			return nil, storeErr("patch appointment", err)
		}
		return updated, nil
	}

	if p.MechanicID != nil {
		if err := b.checkMechanic(ctx, *p.MechanicID); err != nil {
			return nil, err
		}
	}

	night, err := b.night.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read night shift: %v", ErrStoreUnavailable, err)
	}

	next := p.Apply(*current)
	slot, ok := slots.SlotAt(next.ScheduledAt.In(b.loc), next.DurationMinutes, night.Enabled)
	if !ok {
		return nil, fmt.Errorf("%w: %d minutes does not fit a slot starting at %s",
			ErrInvalidSlot, next.DurationMinutes, next.ScheduledAt.In(b.loc).Format("15:04"))
	}

	return b.amend(ctx, current, slot, p, []Status{StatusScheduled})
}

func (b *Booker) amend(ctx context.Context, current *Appointment, slot slots.Slot, p Patch, allowed []Status) (*Appointment, error) {
	next := p.Apply(*current)

	var updated *Appointment
	_, err := b.exclusive(ctx, slots.StartOfDay(slot.Start), func(ctx context.Context, store DayStore) error {
		from, to := slots.DayBounds(slot.Start)
		appts, err := store.ListDay(ctx, from, to)
		if err != nil {
			return fmt.Errorf("%w: list day: %v", ErrStoreUnavailable, err)
		}

		if err := admit(slot, appts, current.ID, next.MechanicID); err != nil {
			return err
		}

		u, err := store.PatchAppointment(ctx, current.ID, allowed, p)
		if err != nil {
			return storeErr("patch appointment", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// admit is the capacity and mechanic check shared by every write path.
func admit(slot slots.Slot, appts []Appointment, exclude uuid.UUID, mechanicID *uuid.UUID) error {
	occ := slots.Measure(slot, occupants(appts), exclude)
	if occ.Full() {
		return fmt.Errorf("%w: %s has %d of %d (peak %d)", ErrSlotFull, slot.Label, occ.Count, occ.Capacity, occ.Peak)
	}
	if mechanicID != nil && occ.MechanicBusy(*mechanicID) {
		return fmt.Errorf("%w: %s", ErrMechanicConflict, slot.Label)
	}
	return nil
}

func (b *Booker) checkMechanic(ctx context.Context, id uuid.UUID) error {
	m, err := b.repo.GetMechanic(ctx, id)
	if err != nil {
		return lookupErr("mechanic", err, ErrMechanicNotFound)
	}
	if !m.Active {
		return fmt.Errorf("%w: mechanic %s is inactive", ErrInvalidRequest, m.Name)
	}
	return nil
}

func (b *Booker) exclusive(ctx context.Context, day time.Time, fn func(ctx context.Context, store DayStore) error) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	var last error
	for _, t := range b.transports {
		err := t.Exclusive(ctx, day, fn)
		if !errors.Is(err, ErrTransportUnavailable) {
			// Ran out of time waiting for the day.
			if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) && !errors.Is(err, ErrStoreUnavailable) {
				err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			return t.Name(), err
		}
		if ctx.Err() != nil {
			return t.Name(), fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		}
		log.Printf("booking transport unavailable transport=%s day=%s err=%v", t.Name(), slots.DayKey(day), err)
		last = err
	}

	if last == nil {
		last = errors.New("no booking transport configured")
	}
	return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, last)
}

// EffectiveDuration picks the requested duration, then the service's, then the default,
// and applies the minimum.
func EffectiveDuration(requested int, svc *ServiceItem) int {
	d := requested
	if d <= 0 && svc != nil && svc.DurationMinutes != nil {
		d = *svc.DurationMinutes
	}
	if d <= 0 {
		d = slots.DefaultDurationMinutes
	}
	return slots.ClampDuration(d)
}

// lookupErr keeps a not found sentinel and turns everything else into a store failure.
func lookupErr(what string, err, notFound error) error {
	if errors.Is(err, notFound) {
		return err
	}
	return fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, what, err)
}

// storeErr passes domain errors through and marks the rest as store failures.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrLifecycleViolation),
		errors.Is(err, ErrStoreUnavailable):
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func outcomeOf(res Booking, err error) string {
	switch {
	case err == nil && res.Duplicate:
		return OutcomeDuplicate
	case err == nil:
		return OutcomeBooked
	case errors.Is(err, ErrSlotFull):
		return OutcomeSlotFull
	case errors.Is(err, ErrMechanicConflict):
		return OutcomeMechanicConflict
	case errors.Is(err, ErrInvalidSlot),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrClientNotFound),
		errors.Is(err, ErrServiceNotFound),
		errors.Is(err, ErrMechanicNotFound):
		return OutcomeInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return OutcomeUnavailable
	}
	return OutcomeError
}
