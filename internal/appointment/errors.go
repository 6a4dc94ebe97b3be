package appointment

import "errors"

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrMechanicNotFound    = errors.New("mechanic not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrInvalidRequest = errors.New("invalid booking request")
	// ErrInvalidSlot: the key is not one the generator produces for that day, duration and night shift state.
	ErrInvalidSlot = errors.New("slot does not exist for this day")
	// ErrSlotFull: capacity was already reached when the booking was about to commit.
	ErrSlotFull = errors.New("slot is full")
	// ErrMechanicConflict: the mechanic already holds an overlapping appointment.
	ErrMechanicConflict = errors.New("mechanic already booked in this window")

	ErrStoreUnavailable   = errors.New("appointment store unavailable, try again")
	ErrLifecycleViolation = errors.New("status transition not allowed")

	// ErrWorkOrderFailed is returned next to an appointment whose confirmation was kept.
	ErrWorkOrderFailed = errors.New("appointment confirmed but work order creation failed")

	// ErrTransportUnavailable is raised by a Transport before it ran any booking logic.
	ErrTransportUnavailable = errors.New("booking transport unavailable")
)
