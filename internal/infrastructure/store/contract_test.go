package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testContract runs the behaviour every EventStoreInterface must share.
func testContract(t *testing.T, newStore func(t *testing.T) EventStoreInterface) {
	t.Run("AppendAssignsVersionsAndKeepsOrder", func(t *testing.T) {
		es := newStore(t)
		ctx := context.Background()

		first, err := es.Append(ctx, AppendRequest{
			AggregateID: "car-9", AggregateType: "Car", EventType: "car_added", UserID: "admin",
			Data: map[string]any{"make": "Toyota"}, ExpectedVersion: 0,
		})
		require.NoError(t, err)
		second, err := es.Append(ctx, AppendRequest{
			AggregateID: "car-9", AggregateType: "Car", EventType: "car_updated", UserID: "admin",
			Data: map[string]any{"daily_rate": 150}, ExpectedVersion: 1,
		})
		require.NoError(t, err)
		third, err := es.Append(ctx, AppendRequest{
			AggregateID: "car-9", AggregateType: "Car", EventType: "car_deleted", UserID: "admin",
			Data: map[string]any{}, ExpectedVersion: AnyVersion,
		})
		require.NoError(t, err)

		assert.Equal(t, 1, first.Version)
		assert.Equal(t, 2, second.Version)
		assert.Equal(t, 3, third.Version)
		assert.NotEmpty(t, first.ID)
		assert.NotEqual(t, first.ID, second.ID)

		events, err := es.GetEvents(ctx, "car-9")
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, []string{"car_added", "car_updated", "car_deleted"},
			[]string{events[0].EventType, events[1].EventType, events[2].EventType})
		assert.Equal(t, "admin", events[0].UserID)
		for i := 1; i < len(events); i++ {
			assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
		}
		assert.JSONEq(t, `{"make":"Toyota"}`, string(events[0].Data))
	})

	t.Run("UnknownAggregateIsEmptyNotError", func(t *testing.T) {
		es := newStore(t)
		events, err := es.GetEvents(context.Background(), "missing")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("VersionConflictWritesNothing", func(t *testing.T) {
		es := newStore(t)
		ctx := context.Background()

		_, err := es.Append(ctx, AppendRequest{AggregateID: "a", AggregateType: "Car", EventType: "car_added", Data: struct{}{}, ExpectedVersion: 0})
		require.NoError(t, err)

		_, err = es.Append(ctx, AppendRequest{AggregateID: "a", AggregateType: "Car", EventType: "car_updated", Data: struct{}{}, ExpectedVersion: 0})
		assert.ErrorIs(t, err, ErrVersionConflict)

		events, err := es.GetEvents(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("UnserializablePayloadIsAppendFailure", func(t *testing.T) {
		es := newStore(t)
		_, err := es.Append(context.Background(), AppendRequest{
			AggregateID: "a", AggregateType: "Car", EventType: "car_added",
			Data: map[string]any{"bad": make(chan int)}, ExpectedVersion: AnyVersion,
		})
		assert.ErrorIs(t, err, ErrAppendFailed)

		events, err := es.GetAllEvents(context.Background())
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("EventsByTypeInAppendOrder", func(t *testing.T) {
		es := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"c1", "c2", "c3"} {
			_, err := es.Append(ctx, AppendRequest{AggregateID: id, AggregateType: "Car", EventType: "car_added", Data: struct{}{}, ExpectedVersion: 0})
			require.NoError(t, err)
		}
		_, err := es.Append(ctx, AppendRequest{AggregateID: "c1", AggregateType: "Car", EventType: "car_updated", Data: struct{}{}, ExpectedVersion: 1})
		require.NoError(t, err)

		added, err := es.GetEventsByType(ctx, "car_added")
		require.NoError(t, err)
		require.Len(t, added, 3)
		assert.Equal(t, "c1", added[0].AggregateID)
		assert.Equal(t, "c2", added[1].AggregateID)
		assert.Equal(t, "c3", added[2].AggregateID)

		all, err := es.GetAllEvents(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("EventsFromVersion", func(t *testing.T) {
		es := newStore(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := es.Append(ctx, AppendRequest{AggregateID: "a", AggregateType: "Car", EventType: "car_updated", Data: map[string]int{"n": i}, ExpectedVersion: i})
			require.NoError(t, err)
		}
		events, err := es.GetEventsFromVersion(ctx, "a", 3)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, 4, events[0].Version)
		assert.Equal(t, 5, events[1].Version)
	})

	t.Run("SnapshotRoundTrip", func(t *testing.T) {
		es := newStore(t)
		ctx := context.Background()

		snap, err := es.GetSnapshot(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, snap)

		state, _ := json.Marshal(map[string]any{"make": "BMW"})
		require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{AggregateID: "a", AggregateType: "Car", Version: 10, State: state, CreatedAt: time.Now()}))
		require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{AggregateID: "a", AggregateType: "Car", Version: 20, State: state, CreatedAt: time.Now()}))

		snap, err = es.GetSnapshot(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, 20, snap.Version)
		assert.JSONEq(t, `{"make":"BMW"}`, string(snap.State))
	})
}

// testConcurrentAppends checks that AnyVersion appends racing on one
// aggregate all land with distinct consecutive versions.
func testConcurrentAppends(t *testing.T, es EventStoreInterface) {
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := es.Append(ctx, AppendRequest{AggregateID: "u", AggregateType: "User", EventType: "user_login", Data: struct{}{}, ExpectedVersion: AnyVersion})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := es.GetEvents(ctx, "u")
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	if e, ok := event.(Event); ok {
		p.events = append(p.events, e)
	}
	return p.err
}

func TestPublishFailureDoesNotFailAppend(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	es := NewEventStore(pub)

	event, err := es.Append(context.Background(), AppendRequest{AggregateID: "a", AggregateType: "Car", EventType: "car_added", Data: struct{}{}, ExpectedVersion: 0})

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, []string{"a"}, pub.keys)
	events, _ := es.GetEvents(context.Background(), "a")
	assert.Len(t, events, 1)
}

func TestAppendRequiresAggregateAndType(t *testing.T) {
	es := NewEventStore()

	_, err := es.Append(context.Background(), AppendRequest{EventType: "car_added", ExpectedVersion: AnyVersion})
	assert.ErrorIs(t, err, ErrAppendFailed)

	_, err = es.Append(context.Background(), AppendRequest{AggregateID: "a", ExpectedVersion: AnyVersion})
	assert.ErrorIs(t, err, ErrAppendFailed)
}

func TestNextTimestamp(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(time.Second), nextTimestamp(base.Add(time.Second), base))
	assert.Equal(t, base, nextTimestamp(base.Add(-time.Second), base))
}
