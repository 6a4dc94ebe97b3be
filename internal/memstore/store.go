// Package memstore keeps every store in process memory. It backs the memory
// storage driver for local runs and the tests of the packages above it.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/appointment"
	"github.com/motoshop/workshop-scheduling/internal/settings"
	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

type Store struct {
	mu           sync.RWMutex
	clients      map[uuid.UUID]appointment.Client
	mechanics    map[uuid.UUID]appointment.Mechanic
	services     map[uuid.UUID]appointment.ServiceItem
	appointments map[uuid.UUID]appointment.Appointment
	orders       map[uuid.UUID]workorder.Order // by appointment id
	events       []appointment.EventLog
	nightShift   settings.NightShift
	seq          int64

	days *dayLocks
	now  func() time.Time
}

func New() *Store {
	return &Store{
		clients:      make(map[uuid.UUID]appointment.Client),
		mechanics:    make(map[uuid.UUID]appointment.Mechanic),
		services:     make(map[uuid.UUID]appointment.ServiceItem),
		appointments: make(map[uuid.UUID]appointment.Appointment),
		orders:       make(map[uuid.UUID]workorder.Order),
		days:         newDayLocks(),
		now:          time.Now,
	}
}

// Seeding

func (s *Store) AddClient(name string) appointment.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := appointment.Client{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.clients[c.ID] = c
	return c
}

func (s *Store) AddMechanic(name string, active bool) appointment.Mechanic {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m := appointment.Mechanic{ID: uuid.New(), Name: name, Active: active, CreatedAt: now, UpdatedAt: now}
	s.mechanics[m.ID] = m
	return m
}

// AddService registers a catalogue entry; durationMinutes <= 0 leaves the duration unset.
func (s *Store) AddService(name string, durationMinutes int, priceCents int64) appointment.ServiceItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	svc := appointment.ServiceItem{ID: uuid.New(), Name: name, PriceCents: priceCents, CreatedAt: now, UpdatedAt: now}
	if durationMinutes > 0 {
		d := durationMinutes
		svc.DurationMinutes = &d
	}
	s.services[svc.ID] = svc
	return svc
}

// Events returns a copy of the event log, oldest first.
func (s *Store) Events() []appointment.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// appointment.Repository

func (s *Store) GetClient(_ context.Context, id uuid.UUID) (*appointment.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, appointment.ErrClientNotFound
	}
	return &c, nil
}

func (s *Store) GetMechanic(_ context.Context, id uuid.UUID) (*appointment.Mechanic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mechanics[id]
	if !ok {
		return nil, appointment.ErrMechanicNotFound
	}
	return &m, nil
}

func (s *Store) GetService(_ context.Context, id uuid.UUID) (*appointment.ServiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, appointment.ErrServiceNotFound
	}
	return &svc, nil
}

func (s *Store) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *Store) ListAppointments(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range s.appointments {
		if !f.From.IsZero() && a.ScheduledAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.ScheduledAt.Before(f.To) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.MechanicID != nil && (a.MechanicID == nil || *a.MechanicID != *f.MechanicID) {
			continue
		}
		if f.ClientID != nil && a.ClientID != *f.ClientID {
			continue
		}
		if f.ExcludeCancelled && a.Status == appointment.StatusCancelled {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (s *Store) ListDay(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error) {
	return s.ListAppointments(ctx, appointment.ListFilter{From: from, To: to, ExcludeCancelled: true})
}

func (s *Store) InsertAppointment(_ context.Context, in appointment.NewAppointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := s.now()
	a := appointment.Appointment{
		ID:              uuid.New(),
		Number:          s.seq,
		ClientID:        in.ClientID,
		ServiceID:       in.ServiceID,
		MechanicID:      in.MechanicID,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		Notes:           in.Notes,
		Status:          appointment.StatusScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.appointments[a.ID] = a
	return &a, nil
}

func (s *Store) PatchAppointment(_ context.Context, id uuid.UUID, allowed []appointment.Status, p appointment.Patch) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if !slices.Contains(allowed, a.Status) {
		return nil, appointment.ErrLifecycleViolation
	}

	a = p.Apply(a)
	a.UpdatedAt = s.now()
	s.appointments[id] = a
	return &a, nil
}

func (s *Store) SaveTransition(_ context.Context, from appointment.Status, next appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[next.ID]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}

	a.Status = next.Status
	a.CancellationReason = next.CancellationReason
	a.ConfirmedAt = next.ConfirmedAt
	a.CancelledAt = next.CancelledAt
	a.CompletedAt = next.CompletedAt
	a.UpdatedAt = s.now()
	s.appointments[a.ID] = a
	return &a, nil
}

func (s *Store) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(s.appointments, id)
	delete(s.orders, id)
	return nil
}

func (s *Store) ConfirmedWithoutWorkOrder(_ context.Context, limit int) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range s.appointments {
		if a.Status != appointment.StatusConfirmed {
			continue
		}
		if _, ok := s.orders[a.ID]; ok {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}
