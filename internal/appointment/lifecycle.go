package appointment

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions is the whole state machine. completed and cancelled have no way out.
// scheduled -> completed is deliberately absent: work is only closed after confirmation.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Occupies reports whether an appointment in this status holds a seat in its slot.
// Completed work still happened in that window, so only cancellation frees it.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

func (s Status) CanMoveTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of a moved to status to, stamped at now.
// An illegal move returns ErrLifecycleViolation and a is left untouched.
func Transition(a Appointment, to Status, now time.Time) (Appointment, error) {
	if !a.Status.CanMoveTo(to) {
		return a, fmt.Errorf("%w: %s -> %s", ErrLifecycleViolation, a.Status, to)
	}

	a.Status = to
	a.UpdatedAt = now
	switch to {
	case StatusConfirmed:
		a.ConfirmedAt = &now
	case StatusCancelled:
		a.CancelledAt = &now
	case StatusCompleted:
		a.CompletedAt = &now
	}
	return a, nil
}
