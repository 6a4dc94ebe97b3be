package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/settings"
)

// Scheduler is the appointment surface the handlers drive.
type Scheduler interface {
	Book(ctx context.Context, req appointment.BookingRequest) (appointment.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListDay(ctx context.Context, date time.Time, f appointment.ListFilter) ([]appointment.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, p appointment.Patch) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slotKey string) (*appointment.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (appointment.Confirmation, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type AvailabilityReader interface {
	ForDay(ctx context.Context, q appointment.AvailabilityQuery) (appointment.DayAvailability, error)
}

func availabilityHandler(av AvailabilityReader, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := parseDate(q.Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		serviceID, err := parseOptionalUUID(optional(q.Get("service_id")), "service_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", err.Error())
			return
		}
		mechanicID, err := parseOptionalUUID(optional(q.Get("mechanic_id")), "mechanic_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_mechanic_id", err.Error())
			return
		}

		var duration int
		if raw := q.Get("duration_minutes"); raw != "" {
			duration, err = strconv.Atoi(raw)
			if err != nil || duration <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be a positive integer")
				return
			}
		}

		day, err := av.ForDay(r.Context(), appointment.AvailabilityQuery{
			Date:            date,
			ServiceID:       serviceID,
			MechanicID:      mechanicID,
			DurationMinutes: duration,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(day, mechanicID != nil))
	}
}

func createAppointmentHandler(svc Scheduler, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}

		date, err := parseDate(req.Date, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		mechanicID, err := parseOptionalUUID(req.MechanicID, "mechanic_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_mechanic_id", err.Error())
			return
		}
		serviceID, err := parseOptionalUUID(req.ServiceID, "service_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", err.Error())
			return
		}

		res, err := svc.Book(r.Context(), appointment.BookingRequest{
			ClientID:        clientID,
			Date:            date,
			SlotKey:         req.SlotKey,
			DurationMinutes: req.DurationMinutes,
			MechanicID:      mechanicID,
			ServiceID:       serviceID,
			Notes:           req.Notes,
		})
		if err != nil {
			log.Printf("booking rejected client=%s date=%s slot=%s path=%s request_id=%s err=%v",
				clientID, req.Date, req.SlotKey, res.Path, GetRequestID(r.Context()), err)
			handleAppointmentError(w, err)
			return
		}

		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		}
		writeJSON(w, status, toAppointmentResponse(res.Appointment))
	}
}

func listAppointmentsHandler(svc Scheduler, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := parseDate(q.Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		var f appointment.ListFilter
		if raw := q.Get("status"); raw != "" {
			st, err := appointment.ParseStatus(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
				return
			}
			f.Status = &st
		}
		if f.MechanicID, err = parseOptionalUUID(optional(q.Get("mechanic_id")), "mechanic_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_mechanic_id", err.Error())
			return
		}
		if f.ClientID, err = parseOptionalUUID(optional(q.Get("client_id")), "client_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", err.Error())
			return
		}

		appts, err := svc.ListDay(r.Context(), date, f)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateAppointmentRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		mechanicID, err := parseOptionalUUID(req.MechanicID, "mechanic_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_mechanic_id", err.Error())
			return
		}

		appt, err := svc.Update(r.Context(), id, appointment.Patch{
			MechanicID:      mechanicID,
			ClearMechanic:   req.ClearMechanic,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc Scheduler, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := parseDate(req.Date, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, date, req.SlotKey)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		res, err := svc.Confirm(r.Context(), id)
		if err != nil {
			if errors.Is(err, appointment.ErrWorkOrderFailed) && res.Appointment != nil {
				writeJSON(w, http.StatusBadGateway, WorkOrderFailedResponse{
					ErrorResponse: ErrorResponse{Error: "work_order_failed", Details: err.Error()},
					Appointment:   toAppointmentResponse(res.Appointment),
				})
				return
			}
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConfirmResponse{
			Appointment: toAppointmentResponse(res.Appointment),
			WorkOrder:   toWorkOrderResponse(res.WorkOrder),
		})
	}
}

func cancelAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelRequest
		if err := decodeJSON(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			handleAppointmentError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getNightShiftHandler(store settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := store.Get(r.Context())
		if err != nil {
			log.Printf("read night shift failed request_id=%s err=%v", GetRequestID(r.Context()), err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "could not read night shift setting, try again")
			return
		}
		writeJSON(w, http.StatusOK, toNightShiftResponse(ns))
	}
}

func putNightShiftHandler(store settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NightShiftRequest
		if err := decodeJSON(r, &req, false); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", `body must be {"enabled": true|false}`)
			return
		}

		ns, err := store.Set(r.Context(), *req.Enabled)
		if err != nil {
			log.Printf("write night shift failed request_id=%s err=%v", GetRequestID(r.Context()), err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "could not save night shift setting, try again")
			return
		}

		log.Printf("night shift set enabled=%t version=%d request_id=%s", ns.Enabled, ns.Version, GetRequestID(r.Context()))
		writeJSON(w, http.StatusOK, toNightShiftResponse(ns))
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, appointment.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, appointment.ErrMechanicNotFound):
		writeError(w, http.StatusNotFound, "mechanic_not_found", err.Error())
	case errors.Is(err, appointment.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, appointment.ErrMechanicConflict):
		writeError(w, http.StatusConflict, "mechanic_conflict", err.Error())
	case errors.Is(err, appointment.ErrLifecycleViolation):
		writeError(w, http.StatusConflict, "lifecycle_violation", err.Error())
	case errors.Is(err, appointment.ErrStoreUnavailable):
		log.Printf("store unavailable: %v", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporary storage problem, try again")
	default:
		log.Printf("unexpected appointment error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
