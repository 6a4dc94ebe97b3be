package memstore

import (
	"context"

	"github.com/motoshop/workshop-scheduling/internal/settings"
)

// NightShift exposes the store's night shift record as a settings.Store.
func (s *Store) NightShift() settings.Store {
	return nightShiftStore{s}
}

type nightShiftStore struct {
	s *Store
}

func (n nightShiftStore) Get(_ context.Context) (settings.NightShift, error) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	return n.s.nightShift, nil
}

func (n nightShiftStore) Set(_ context.Context, enabled bool) (settings.NightShift, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()

	n.s.nightShift = settings.NightShift{
		Enabled:   enabled,
		Version:   n.s.nightShift.Version + 1,
		UpdatedAt: n.s.now(),
	}
	return n.s.nightShift, nil
}
