package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/motoshop/workshop-scheduling/internal/workorder"
)

// WorkOrders exposes the store's work orders as a workorder.Creator.
func (s *Store) WorkOrders() workorder.Creator {
	return workOrders{s}
}

// WorkOrderFor returns the order created for an appointment, if any.
func (s *Store) WorkOrderFor(appointmentID uuid.UUID) (workorder.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[appointmentID]
	return o, ok
}

type workOrders struct {
	s *Store
}

func (w workOrders) Create(_ context.Context, req workorder.Request) (*workorder.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if o, ok := w.s.orders[req.AppointmentID]; ok {
		return &o, nil
	}

	o := workorder.Order{
		ID:            uuid.New(),
		AppointmentID: req.AppointmentID,
		ClientID:      req.ClientID,
		ServiceID:     req.ServiceID,
		MechanicID:    req.MechanicID,
		Status:        workorder.StatusOpen,
		CreatedAt:     w.s.now(),
	}
	w.s.orders[req.AppointmentID] = o
	return &o, nil
}
