package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/example/car-rental-events/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedStore writes a small history to a fresh SQLite file and points the
// configuration at it
func seedStore(t *testing.T) (carID, userID string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	t.Setenv("EVENT_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("CAR_BACKEND", "events")

	db, err := store.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	es := store.NewSQLiteEventStore(db)
	ctx := context.Background()

	cars := car.NewService(es, nil, 0)
	carID, err = cars.Create(ctx, car.CarAdded{
		Make: "Kia", Model: "Picanto", Year: 2021, CarType: "compact", DailyRate: 120, Location: "Haifa",
	}, "admin-1")
	require.NoError(t, err)
	require.NoError(t, cars.Delete(ctx, carID, "admin-1"))

	u, err := user.NewService(es, 0).Register(ctx, user.Registration{
		Email: "dana@example.com", Password: "rental2024", FirstName: "Dana", LastName: "Levi",
	}, "")
	require.NoError(t, err)
	return carID, u.ID
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ============================================
// Inspection Commands
// ============================================

func TestEvents(t *testing.T) {
	carID, _ := seedStore(t)

	out, err := run(t, "events", carID)
	require.NoError(t, err)

	var events []store.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 2)
	assert.Equal(t, car.EventCarAdded, events[0].EventType)
	assert.Equal(t, car.EventCarDeleted, events[1].EventType)
}

func TestEvents_ByType(t *testing.T) {
	seedStore(t)

	out, err := run(t, "events", "--type", user.EventUserRegistered)
	require.NoError(t, err)

	var events []store.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	assert.Len(t, events, 1)
}

func TestEvents_NeedsTarget(t *testing.T) {
	_, err := run(t, "events")
	assert.Error(t, err)
}

func TestCar_IncludesDeleted(t *testing.T) {
	carID, _ := seedStore(t)

	out, err := run(t, "car", carID)
	require.NoError(t, err)

	var c car.Car
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, "Kia", c.Make)
	assert.True(t, c.Deleted)
}

func TestUser_HidesPasswordHash(t *testing.T) {
	_, userID := seedStore(t)

	out, err := run(t, "user", userID)
	require.NoError(t, err)

	var u user.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "dana@example.com", u.Email)
	assert.Empty(t, u.PasswordHash)
}

func TestUser_Unknown(t *testing.T) {
	seedStore(t)

	_, err := run(t, "user", "user-missing")
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestStats(t *testing.T) {
	seedStore(t)

	out, err := run(t, "stats")
	require.NoError(t, err)

	var report fleetStats
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Events)
	assert.Zero(t, report.CarsByType.Total)
	assert.Equal(t, 1, report.Users.TotalUsers)
}

// ============================================
// Republish
// ============================================

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}

func TestRepublish(t *testing.T) {
	es := mocks.NewMockEventStore()
	require.NoError(t, es.AddEvent("car-1", car.AggregateType, car.EventCarAdded, car.CarAdded{Make: "Kia"}))
	require.NoError(t, es.AddEvent("car-2", car.AggregateType, car.EventCarAdded, car.CarAdded{Make: "Seat"}))
	require.NoError(t, es.AddEvent("car-2", car.AggregateType, car.EventCarDeleted, car.CarDeleted{}))
	ctx := context.Background()

	pub := &recordingPublisher{}
	n, err := republish(ctx, es, pub, time.Time{}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"car-1", "car-2", "car-2"}, pub.keys)

	pub = &recordingPublisher{}
	n, err = republish(ctx, es, pub, time.Time{}, car.EventCarDeleted)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = republish(ctx, es, &recordingPublisher{}, time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepublish_StopsOnFailure(t *testing.T) {
	es := mocks.NewMockEventStore()
	require.NoError(t, es.AddEvent("car-1", car.AggregateType, car.EventCarAdded, car.CarAdded{Make: "Kia"}))

	n, err := republish(context.Background(), es, &recordingPublisher{err: errors.New("broker down")}, time.Time{}, "")

	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestRepublish_NeedsBrokers(t *testing.T) {
	seedStore(t)
	t.Setenv("KAFKA_BROKERS", "")

	_, err := run(t, "republish")
	assert.Error(t, err)
}
