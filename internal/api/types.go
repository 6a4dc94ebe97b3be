package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/settings"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

type CreateAppointmentRequest struct {
	ClientID        string  `json:"client_id"`
	Date            string  `json:"date"` // YYYY-MM-DD in workshop time
	SlotKey         string  `json:"slot_key"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	MechanicID      *string `json:"mechanic_id,omitempty"`
	ServiceID       *string `json:"service_id,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	MechanicID      *string `json:"mechanic_id,omitempty"`
	ClearMechanic   bool    `json:"clear_mechanic,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	Date    string `json:"date"`
	SlotKey string `json:"slot_key"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type NightShiftRequest struct {
	Enabled *bool `json:"enabled"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Number             int64      `json:"number"`
	ClientID           uuid.UUID  `json:"client_id"`
	ServiceID          *uuid.UUID `json:"service_id,omitempty"`
	MechanicID         *uuid.UUID `json:"mechanic_id,omitempty"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	EndsAt             time.Time  `json:"ends_at"`
	DurationMinutes    int        `json:"duration_minutes"`
	Notes              string     `json:"notes"`
	Status             string     `json:"status"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type WorkOrderResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type ConfirmResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	WorkOrder   *WorkOrderResponse  `json:"work_order,omitempty"`
}

type SlotResponse struct {
	Key             string    `json:"key"`
	Label           string    `json:"label"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Night           bool      `json:"night"`
	Occupied        int       `json:"occupied"`
	Capacity        int       `json:"capacity"`
	Available       int       `json:"available"`
	Full            bool      `json:"full"`
	MechanicBusy    *bool     `json:"mechanic_busy,omitempty"`
}

type AvailabilityResponse struct {
	Date            string         `json:"date"`
	DurationMinutes int            `json:"duration_minutes"`
	NightShift      bool           `json:"night_shift"`
	Degraded        bool           `json:"degraded,omitempty"`
	Slots           []SlotResponse `json:"slots"`
}

type NightShiftResponse struct {
	Enabled   bool       `json:"enabled"`
	Version   int64      `json:"version"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WorkOrderFailedResponse is returned with 502 when a confirmation stuck but its work order did not.
type WorkOrderFailedResponse struct {
	ErrorResponse
	Appointment AppointmentResponse `json:"appointment"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		Number:             a.Number,
		ClientID:           a.ClientID,
		ServiceID:          a.ServiceID,
		MechanicID:         a.MechanicID,
		ScheduledAt:        a.ScheduledAt,
		EndsAt:             a.End(),
		DurationMinutes:    a.DurationMinutes,
		Notes:              a.Notes,
		Status:             string(a.Status),
		CancellationReason: a.CancellationReason,
		ConfirmedAt:        a.ConfirmedAt,
		CancelledAt:        a.CancelledAt,
		CompletedAt:        a.CompletedAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toWorkOrderResponse(o *workorder.Order) *WorkOrderResponse {
	if o == nil {
		return nil
	}
	return &WorkOrderResponse{
		ID:            o.ID,
		AppointmentID: o.AppointmentID,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
	}
}

func toAvailabilityResponse(d appointment.DayAvailability, withMechanic bool) AvailabilityResponse {
	resp := AvailabilityResponse{
		Date:            d.Date.Format(dateLayout),
		DurationMinutes: d.DurationMinutes,
		NightShift:      d.NightShift,
		Degraded:        d.Degraded,
		Slots:           make([]SlotResponse, 0, len(d.Slots)),
	}
	for _, s := range d.Slots {
		sr := SlotResponse{
			Key:             s.Slot.Key,
			Label:           s.Slot.Label,
			Start:           s.Slot.Start,
			End:             s.Slot.End,
			DurationMinutes: s.Slot.DurationMinutes,
			Night:           s.Slot.Night,
			Occupied:        s.Occupied,
			Capacity:        s.Capacity,
			Available:       s.Available,
			Full:            s.Full,
		}
		if withMechanic {
			busy := s.MechanicBusy
			sr.MechanicBusy = &busy
		}
		resp.Slots = append(resp.Slots, sr)
	}
	return resp
}

func toNightShiftResponse(ns settings.NightShift) NightShiftResponse {
	resp := NightShiftResponse{Enabled: ns.Enabled, Version: ns.Version}
	if !ns.UpdatedAt.IsZero() {
		t := ns.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}
