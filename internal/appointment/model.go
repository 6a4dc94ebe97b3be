package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/slots"
)

type Client struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Mechanic struct {
	ID        uuid.UUID
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceItem is a catalogue entry. DurationMinutes is nil when the shop never configured one.
type ServiceItem struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes *int
	PriceCents      int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	Number             int64
	ClientID           uuid.UUID
	ServiceID          *uuid.UUID
	MechanicID         *uuid.UUID
	ScheduledAt        time.Time
	DurationMinutes    int
	Notes              string
	Status             Status
	CancellationReason *string
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) End() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Occupant() slots.Occupant {
	return slots.Occupant{
		ID:              a.ID,
		MechanicID:      a.MechanicID,
		Start:           a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Cancelled:       !a.Status.Occupies(),
	}
}

func occupants(appts []Appointment) []slots.Occupant {
	out := make([]slots.Occupant, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Occupant())
	}
	return out
}

// NewAppointment is what a booking writes. Status is always scheduled.
type NewAppointment struct {
	ClientID        uuid.UUID
	ServiceID       *uuid.UUID
	MechanicID      *uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           string
}

// Patch lists the fields an update may touch; nil means unchanged.
type Patch struct {
	ScheduledAt     *time.Time
	DurationMinutes *int
	MechanicID      *uuid.UUID
	ClearMechanic   bool
	Notes           *string
}

func (p Patch) Empty() bool {
	return p.ScheduledAt == nil && p.DurationMinutes == nil && p.MechanicID == nil && !p.ClearMechanic && p.Notes == nil
}

// Apply returns a copy of a with the patch applied.
func (p Patch) Apply(a Appointment) Appointment {
	if p.ScheduledAt != nil {
		a.ScheduledAt = *p.ScheduledAt
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	if p.ClearMechanic {
		a.MechanicID = nil
	} else if p.MechanicID != nil {
		id := *p.MechanicID
		a.MechanicID = &id
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	return a
}

// ListFilter selects appointments scheduled in [From, To). Zero bounds are open.
type ListFilter struct {
	From       time.Time
	To         time.Time
	Status     *Status
	MechanicID *uuid.UUID
	ClientID   *uuid.UUID
	// ExcludeCancelled drops cancelled rows, which is what occupancy reads want.
	ExcludeCancelled bool
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
