package settings

import (
	"context"
	"time"
)

// NightShift is the single workshop-wide toggle for the 18:30-22:00 window.
// Version grows by one on every write; a never written setting is disabled at version 0.
type NightShift struct {
	Enabled   bool
	Version   int64
	UpdatedAt time.Time
}

type Store interface {
	Get(ctx context.Context) (NightShift, error)
	// Set overwrites the value. Concurrent writers are resolved last-write-wins.
	Set(ctx context.Context, enabled bool) (NightShift, error)
}
