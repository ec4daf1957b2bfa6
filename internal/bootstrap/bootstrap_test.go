package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/car-rental-events/internal/config"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEventStore_Memory(t *testing.T) {
	stores, err := OpenEventStore(context.Background(), &config.Config{EventStore: config.StoreMemory})
	require.NoError(t, err)
	defer stores.Close()

	assert.IsType(t, &store.EventStore{}, stores.Events)
}

func TestOpenEventStore_SQLite(t *testing.T) {
	cfg := &config.Config{
		EventStore: config.StoreSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "events.db"),
		CarBackend: config.CarsFromEvents,
	}
	stores, err := OpenEventStore(context.Background(), cfg)
	require.NoError(t, err)

	assert.IsType(t, &store.SQLiteEventStore{}, stores.Events)

	repo, err := stores.CarRepository(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &car.Service{}, repo)

	assert.NoError(t, stores.Close())
}

func TestOpenEventStore_Unknown(t *testing.T) {
	_, err := OpenEventStore(context.Background(), &config.Config{EventStore: "cassandra"})
	assert.Error(t, err)
}
