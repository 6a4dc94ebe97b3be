//go:build integration

package settings_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motoshop/workshop-scheduling/internal/db"
	"github.com/motoshop/workshop-scheduling/internal/settings"
)

func TestPgStoreSetBumpsVersion(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	store := settings.NewPgStore(pool)
	before, err := store.Get(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.Set(context.Background(), before.Enabled)
	})

	on, err := store.Set(ctx, true)
	require.NoError(t, err)
	assert.True(t, on.Enabled)
	assert.Equal(t, before.Version+1, on.Version)

	again, err := store.Set(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, on.Version+1, again.Version, "writing the same value still counts")

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, again.Version, got.Version)
	assert.False(t, got.UpdatedAt.Before(on.UpdatedAt))
}
