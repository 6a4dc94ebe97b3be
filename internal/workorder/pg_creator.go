package workorder

import (
	"context"
	"fmt"

	"github.com/motoshop/workshop-scheduling/internal/db"
)

type PgCreator struct {
	q db.Querier
}

func NewPgCreator(q db.Querier) *PgCreator {
	return &PgCreator{q: q}
}

func (c *PgCreator) Create(ctx context.Context, req Request) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	_, err := c.q.Exec(ctx, `
		INSERT INTO work_orders (appointment_id, client_id, service_id, mechanic_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (appointment_id) DO NOTHING
	`, req.AppointmentID, req.ClientID, req.ServiceID, req.MechanicID, StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("insert work order: %w", err)
	}

	var o Order
	err = c.q.QueryRow(ctx, `
		SELECT id, appointment_id, client_id, service_id, mechanic_id, status, created_at
		FROM work_orders
		WHERE appointment_id = $1
	`, req.AppointmentID).Scan(
		&o.ID,
		&o.AppointmentID,
		&o.ClientID,
		&o.ServiceID,
		&o.MechanicID,
		&o.Status,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("read work order: %w", err)
	}
	return &o, nil
}
