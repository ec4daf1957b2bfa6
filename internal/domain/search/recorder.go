package search

import (
	"context"
	"sort"
	"time"

	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RecentLimit is the number of searches reported as recent
const RecentLimit = 10

// Recorder writes search_performed events and summarizes them
type Recorder struct {
	eventStore store.EventStoreInterface
	now        func() time.Time
}

func NewRecorder(es store.EventStoreInterface) *Recorder {
	return &Recorder{eventStore: es, now: time.Now}
}

// Record appends a search_performed event. Failures are logged and
// swallowed so that recording never affects the search itself.
func (r *Recorder) Record(ctx context.Context, q Query, resultsCount int, author string) {
	if author == "" {
		author = "anonymous"
	}
	_, err := r.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:   "search-" + uuid.New().String(),
		AggregateType: AggregateType,
		EventType:     EventSearchPerformed,
		UserID:        author,
		Data: SearchPerformed{
			Query:        q,
			ResultsCount: resultsCount,
			Timestamp:    r.now().UTC(),
		},
		ExpectedVersion: store.AnyVersion,
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "search").Msg("failed to record search")
	}
}

// Statistics summarizes every recorded search
func (r *Recorder) Statistics(ctx context.Context) (*Statistics, error) {
	events, err := r.eventStore.GetEventsByType(ctx, EventSearchPerformed)
	if err != nil {
		return nil, err
	}
	stats := NewStatistics()
	for _, e := range events {
		stats.Add(e)
	}
	return stats, nil
}

// RecentSearch is one entry of the recent searches list
type RecentSearch struct {
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	Query        Query     `json:"query"`
	ResultsCount int       `json:"results_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// Statistics is a running summary of search_performed events
type Statistics struct {
	TotalSearches    int            `json:"total_searches"`
	PopularLocations map[string]int `json:"popular_locations"`
	PopularCarTypes  map[string]int `json:"popular_car_types"`
	RecentSearches   []RecentSearch `json:"recent_searches"`
}

func NewStatistics() *Statistics {
	return &Statistics{
		PopularLocations: make(map[string]int),
		PopularCarTypes:  make(map[string]int),
		RecentSearches:   []RecentSearch{},
	}
}

// Add folds one search_performed event into the summary. Other event
// types and undecodable payloads are ignored.
func (s *Statistics) Add(event store.Event) {
	if event.EventType != EventSearchPerformed {
		return
	}
	var data SearchPerformed
	if err := event.Decode(&data); err != nil {
		log.Error().Err(err).Str("component", "search").Str("event_id", event.ID).
			Msg("skipping undecodable search event")
		return
	}

	s.TotalSearches++
	if data.Query.Location != "" {
		s.PopularLocations[data.Query.Location]++
	}
	if data.Query.CarType != "" {
		s.PopularCarTypes[data.Query.CarType]++
	}

	s.RecentSearches = append(s.RecentSearches, RecentSearch{
		EventID:      event.ID,
		UserID:       event.UserID,
		Query:        data.Query,
		ResultsCount: data.ResultsCount,
		Timestamp:    event.Timestamp,
	})
	// newest first, bounded
	sort.SliceStable(s.RecentSearches, func(i, j int) bool {
		return s.RecentSearches[i].Timestamp.After(s.RecentSearches[j].Timestamp)
	})
	if len(s.RecentSearches) > RecentLimit {
		s.RecentSearches = s.RecentSearches[:RecentLimit]
	}
}
