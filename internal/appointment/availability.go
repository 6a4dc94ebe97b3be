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

type SlotAvailability struct {
	Slot      slots.Slot
	Occupied  int
	Capacity  int
	Available int
	Full      bool
	// MechanicBusy is only meaningful when the query named a mechanic.
	MechanicBusy bool
}

type AvailabilityQuery struct {
	Date       time.Time
	ServiceID  *uuid.UUID
	MechanicID *uuid.UUID
	// DurationMinutes overrides the service duration when positive.
	DurationMinutes int
}

type DayAvailability struct {
	Date            time.Time
	DurationMinutes int
	NightShift      bool
	Slots           []SlotAvailability
	// Degraded is set when appointments could not be read and no slots are offered.
	Degraded bool
}

// Availability answers what can be booked on a day. It never writes.
type Availability struct {
	repo   Repository
	night  NightShiftSource
	booker *Booker
	rec    Recorder
}

func NewAvailability(repo Repository, night NightShiftSource, booker *Booker, rec Recorder) *Availability {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Availability{
		repo:   repo,
		night:  night,
		booker: booker,
		rec:    rec,
	}
}

// ForDay generates the day's slots and measures each against the live appointments.
// A failed appointment read yields an empty, degraded answer instead of unverified capacity.
func (a *Availability) ForDay(ctx context.Context, q AvailabilityQuery) (DayAvailability, error) {
	if q.Date.IsZero() {
		return DayAvailability{}, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	day := a.booker.LocalDay(q.Date)

	var svc *ServiceItem
	if q.ServiceID != nil {
		s, err := a.repo.GetService(ctx, *q.ServiceID)
		if err != nil {
			if errors.Is(err, ErrServiceNotFound) {
				return DayAvailability{}, err
			}
			log.Printf("availability degraded reason=service_read day=%s err=%v", slots.DayKey(day), err)
			a.rec.AvailabilityDegraded("service_read")
			return DayAvailability{Date: day, Degraded: true}, nil
		}
		svc = s
	}

	out := DayAvailability{
		Date:            day,
		DurationMinutes: EffectiveDuration(q.DurationMinutes, svc),
	}

	night, err := a.night.Get(ctx)
	if err != nil {
		// Standard hours are always open, so fall back to them rather than hiding the day.
		log.Printf("night shift read failed, using standard hours day=%s err=%v", slots.DayKey(day), err)
		a.rec.AvailabilityDegraded("night_shift_read")
	} else {
		out.NightShift = night.Enabled
	}

	from, to := slots.DayBounds(day)
	appts, err := a.repo.ListDay(ctx, from, to)
	if err != nil {
		log.Printf("availability degraded reason=appointment_read day=%s err=%v", slots.DayKey(day), err)
		a.rec.AvailabilityDegraded("appointment_read")
		out.Degraded = true
		return out, nil
	}

	occ := occupants(appts)
	for _, s := range slots.Generate(day, out.DurationMinutes, out.NightShift) {
		m := slots.Measure(s, occ, uuid.Nil)
		sa := SlotAvailability{
			Slot:      s,
			Occupied:  m.Count,
			Capacity:  m.Capacity,
			Available: m.Available(),
			Full:      m.Full(),
		}
		if q.MechanicID != nil {
			sa.MechanicBusy = m.MechanicBusy(*q.MechanicID)
		}
		out.Slots = append(out.Slots, sa)
	}

	return out, nil
}
