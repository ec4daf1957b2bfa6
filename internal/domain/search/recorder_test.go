package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/example/car-rental-events/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Record(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	recorder := NewRecorder(eventStore)
	maxPrice := 200.0

	recorder.Record(context.Background(), Query{Location: "Tel Aviv", MaxPrice: &maxPrice}, 2, "")

	require.Len(t, eventStore.AppendCalls, 1)
	call := eventStore.AppendCalls[0]
	assert.Equal(t, EventSearchPerformed, call.EventType)
	assert.Equal(t, "anonymous", call.UserID)
	assert.Equal(t, store.AnyVersion, call.ExpectedVersion)
	assert.Contains(t, call.AggregateID, "search-")

	data := call.Data.(SearchPerformed)
	assert.Equal(t, 2, data.ResultsCount)
	assert.Equal(t, "Tel Aviv", data.Query.Location)
}

func TestRecorder_RecordSwallowsAppendFailure(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	eventStore.AppendErr = errors.New("disk full")
	recorder := NewRecorder(eventStore)

	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), Query{}, 0, "user-1")
	})
	assert.Len(t, eventStore.AppendCalls, 1)
}

func TestRecorder_Statistics(t *testing.T) {
	es := store.NewEventStore()
	recorder := NewRecorder(es)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	queries := []Query{
		{Location: "Tel Aviv", CarType: "compact"},
		{Location: "Tel Aviv"},
		{Location: "Haifa", CarType: "suv"},
		{},
	}
	for i, q := range queries {
		recorder.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		recorder.Record(ctx, q, i, "anonymous")
	}

	stats, err := recorder.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalSearches)
	assert.Equal(t, map[string]int{"Tel Aviv": 2, "Haifa": 1}, stats.PopularLocations)
	assert.Equal(t, map[string]int{"compact": 1, "suv": 1}, stats.PopularCarTypes)
	assert.Len(t, stats.RecentSearches, 4)
}

func TestStatistics_RecentIsBoundedNewestFirst(t *testing.T) {
	stats := NewStatistics()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		stats.Add(store.Event{
			ID:        string(rune('a' + i)),
			EventType: EventSearchPerformed,
			Data:      []byte(`{"query":{},"results_count":0}`),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	assert.Equal(t, 15, stats.TotalSearches)
	require.Len(t, stats.RecentSearches, RecentLimit)
	assert.Equal(t, base.Add(14*time.Second), stats.RecentSearches[0].Timestamp)
}

func TestStatistics_IgnoresBadPayload(t *testing.T) {
	stats := NewStatistics()

	stats.Add(store.Event{ID: "x", EventType: EventSearchPerformed, Data: []byte(`not json`)})
	stats.Add(store.Event{ID: "y", EventType: "car_added", Data: []byte(`{}`)})

	assert.Equal(t, 0, stats.TotalSearches)
}
