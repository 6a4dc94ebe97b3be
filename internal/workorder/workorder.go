package workorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidRequest = errors.New("work order request is missing appointment or client")

// Request carries what the work order side needs from a confirmed appointment.
type Request struct {
	AppointmentID     uuid.UUID
	AppointmentNumber int64
	ClientID          uuid.UUID
	ServiceID         *uuid.UUID
	MechanicID        *uuid.UUID
	ScheduledAt       time.Time
}

func (r Request) Validate() error {
	if r.AppointmentID == uuid.Nil || r.ClientID == uuid.Nil {
		return ErrInvalidRequest
	}
	return nil
}

type Order struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	ClientID      uuid.UUID
	ServiceID     *uuid.UUID
	MechanicID    *uuid.UUID
	Status        string
	CreatedAt     time.Time
}

const StatusOpen = "open"

// Creator materializes a work order. Creating twice for the same appointment returns the first order.
type Creator interface {
	Create(ctx context.Context, req Request) (*Order, error)
}
