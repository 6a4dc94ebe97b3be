package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/motoshop/workshop-scheduling/internal/db"
)

type PgStore struct {
	q db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) Get(ctx context.Context) (NightShift, error) {
	var ns NightShift
	err := s.q.QueryRow(ctx, `
		SELECT enabled, version, updated_at
		FROM night_shift_settings
		WHERE id
	`).Scan(&ns.Enabled, &ns.Version, &ns.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NightShift{}, nil
		}
		return NightShift{}, fmt.Errorf("get night shift: %w", err)
	}
	return ns, nil
}

func (s *PgStore) Set(ctx context.Context, enabled bool) (NightShift, error) {
	var ns NightShift
	err := s.q.QueryRow(ctx, `
		INSERT INTO night_shift_settings (id, enabled, version, updated_at)
		VALUES (TRUE, $1, 1, now())
		ON CONFLICT (id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    version = night_shift_settings.version + 1,
		    updated_at = now()
		RETURNING enabled, version, updated_at
	`, enabled).Scan(&ns.Enabled, &ns.Version, &ns.UpdatedAt)
	if err != nil {
		return NightShift{}, fmt.Errorf("set night shift: %w", err)
	}
	return ns, nil
}
