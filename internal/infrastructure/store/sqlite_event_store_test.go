package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteEventStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteEventStore(db)
}

func TestSQLiteEventStore_Contract(t *testing.T) {
	testContract(t, func(t *testing.T) EventStoreInterface {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteEventStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = NewSQLiteEventStore(db).Append(ctx, AppendRequest{
		AggregateID: "car-1", AggregateType: "Car", EventType: "car_added", UserID: "system",
		Data: map[string]any{"make": "Honda"}, ExpectedVersion: 0,
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	events, err := NewSQLiteEventStore(db).GetEvents(ctx, "car-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "system", events[0].UserID)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.JSONEq(t, `{"make":"Honda"}`, string(events[0].Data))
}

func TestSQLiteEventStore_ClosedDatabaseReportsUnavailable(t *testing.T) {
	es := newTestSQLiteStore(t)
	require.NoError(t, es.db.Close())

	_, err := es.GetEvents(context.Background(), "car-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = es.Append(context.Background(), AppendRequest{AggregateID: "car-1", AggregateType: "Car", EventType: "car_added", Data: struct{}{}, ExpectedVersion: 0})
	assert.ErrorIs(t, err, ErrAppendFailed)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestSQLiteEventStore_ConcurrentAppends(t *testing.T) {
	testConcurrentAppends(t, newTestSQLiteStore(t))
}
