package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/slots"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeError
)

type bookRequest struct {
	ClientID        uuid.UUID
	MechanicID      *uuid.UUID
	Date            time.Time
	SlotKey         string
	DurationMinutes int
}

// target is where the simulated load goes: the scheduling service in process, or a running API.
type target interface {
	name() string
	book(ctx context.Context, req bookRequest) (uuid.UUID, outcome)
	confirm(ctx context.Context, id uuid.UUID) outcome
	cancel(ctx context.Context, id uuid.UUID) outcome
	listDay(ctx context.Context, day time.Time) ([]slots.Occupant, error)
}

type serviceTarget struct {
	svc *appointment.Service
}

func (t *serviceTarget) name() string { return "in-process service" }

func (t *serviceTarget) book(ctx context.Context, req bookRequest) (uuid.UUID, outcome) {
	res, err := t.svc.Book(ctx, appointment.BookingRequest{
		ClientID:        req.ClientID,
		MechanicID:      req.MechanicID,
		Date:            req.Date,
		SlotKey:         req.SlotKey,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return uuid.Nil, classify(err)
	}
	if res.Duplicate {
		return uuid.Nil, outcomeSuccess
	}
	return res.Appointment.ID, outcomeSuccess
}

func (t *serviceTarget) confirm(ctx context.Context, id uuid.UUID) outcome {
	_, err := t.svc.Confirm(ctx, id)
	return classify(err)
}

func (t *serviceTarget) cancel(ctx context.Context, id uuid.UUID) outcome {
	_, err := t.svc.Cancel(ctx, id, "simulated")
	return classify(err)
}

func (t *serviceTarget) listDay(ctx context.Context, day time.Time) ([]slots.Occupant, error) {
	appts, err := t.svc.ListDay(ctx, day, appointment.ListFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]slots.Occupant, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Occupant())
	}
	return out, nil
}

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, appointment.ErrSlotFull),
		errors.Is(err, appointment.ErrMechanicConflict),
		errors.Is(err, appointment.ErrLifecycleViolation):
		return outcomeConflict
	default:
		return outcomeError
	}
}

type httpTarget struct {
	baseURL string
	client  *http.Client
}

func newHTTPTarget(baseURL string) *httpTarget {
	return &httpTarget{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *httpTarget) name() string { return t.baseURL }

func (t *httpTarget) book(ctx context.Context, req bookRequest) (uuid.UUID, outcome) {
	body := map[string]any{
		"client_id":        req.ClientID.String(),
		"date":             slots.DayKey(req.Date),
		"slot_key":         req.SlotKey,
		"duration_minutes": req.DurationMinutes,
	}
	if req.MechanicID != nil {
		body["mechanic_id"] = req.MechanicID.String()
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := t.do(ctx, http.MethodPost, "/appointments", body, &created)
	switch {
	case err != nil:
		return uuid.Nil, outcomeError
	case status == http.StatusCreated:
		return created.ID, outcomeSuccess
	case status == http.StatusOK:
		return uuid.Nil, outcomeSuccess
	case status == http.StatusConflict:
		return uuid.Nil, outcomeConflict
	default:
		return uuid.Nil, outcomeError
	}
}

func (t *httpTarget) confirm(ctx context.Context, id uuid.UUID) outcome {
	return t.post(ctx, fmt.Sprintf("/appointments/%s/confirm", id), nil)
}

func (t *httpTarget) cancel(ctx context.Context, id uuid.UUID) outcome {
	return t.post(ctx, fmt.Sprintf("/appointments/%s/cancel", id), map[string]string{"reason": "simulated"})
}

func (t *httpTarget) post(ctx context.Context, path string, body any) outcome {
	status, err := t.do(ctx, http.MethodPost, path, body, nil)
	switch {
	case err != nil:
		return outcomeError
	case status == http.StatusOK:
		return outcomeSuccess
	case status == http.StatusConflict:
		return outcomeConflict
	default:
		return outcomeError
	}
}

func (t *httpTarget) listDay(ctx context.Context, day time.Time) ([]slots.Occupant, error) {
	var appts []struct {
		ID              uuid.UUID  `json:"id"`
		MechanicID      *uuid.UUID `json:"mechanic_id"`
		ScheduledAt     time.Time  `json:"scheduled_at"`
		DurationMinutes int        `json:"duration_minutes"`
		Status          string     `json:"status"`
	}

	status, err := t.do(ctx, http.MethodGet, "/appointments?date="+slots.DayKey(day), nil, &appts)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list appointments: status %d", status)
	}

	out := make([]slots.Occupant, 0, len(appts))
	for _, a := range appts {
		out = append(out, slots.Occupant{
			ID:              a.ID,
			MechanicID:      a.MechanicID,
			Start:           a.ScheduledAt,
			DurationMinutes: a.DurationMinutes,
			Cancelled:       a.Status == string(appointment.StatusCancelled),
		})
	}
	return out, nil
}

func (t *httpTarget) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
