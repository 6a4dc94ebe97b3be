package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/settings"
)

// DayStore is the slice of storage a booking needs while it holds a day exclusively.
type DayStore interface {
	// ListDay returns the non-cancelled appointments scheduled in [from, to).
	ListDay(ctx context.Context, from, to time.Time) ([]Appointment, error)
	InsertAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)
	// PatchAppointment updates an appointment only while its status is one of allowed.
	// ErrLifecycleViolation reports a status outside allowed.
	PatchAppointment(ctx context.Context, id uuid.UUID, allowed []Status, p Patch) (*Appointment, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	DayStore

	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)
	GetMechanic(ctx context.Context, id uuid.UUID) (*Mechanic, error)
	GetService(ctx context.Context, id uuid.UUID) (*ServiceItem, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// SaveTransition writes status and lifecycle stamps of next, only if the row is still in from.
	// ErrAppointmentNotFound is returned when no row matched.
	SaveTransition(ctx context.Context, from Status, next Appointment) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Work order reconciler
	ConfirmedWithoutWorkOrder(ctx context.Context, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// NightShiftSource is read on every slot generation.
type NightShiftSource interface {
	Get(ctx context.Context) (settings.NightShift, error)
}

// Transport runs fn with exclusive booking access to one calendar day.
// A transport that cannot provide that returns ErrTransportUnavailable without calling fn.
type Transport interface {
	Name() string
	Exclusive(ctx context.Context, day time.Time, fn func(ctx context.Context, store DayStore) error) error
}

// Recorder receives booking and availability outcomes.
type Recorder interface {
	BookingOutcome(outcome, path string)
	AvailabilityDegraded(reason string)
}

type nopRecorder struct{}

func (nopRecorder) BookingOutcome(string, string) {}
func (nopRecorder) AvailabilityDegraded(string)   {}
