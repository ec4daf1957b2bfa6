package car

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const AggregateType = "Car"

var (
	ErrCarNotFound      = aggregate.NotFound("car")
	ErrNoFieldsToUpdate = aggregate.Invalid("no fields to update")
)

// Repository is the one interface the rest of the system uses for cars.
// It is implemented by the event-sourced Service and by the relational
// PostgreSQL repository.
type Repository interface {
	ListActive(ctx context.Context) ([]*Car, error)
	Get(ctx context.Context, id string) (*Car, error)
	Search(ctx context.Context, q search.Query, author string) ([]*Car, error)
	Create(ctx context.Context, in CarAdded, author string) (string, error)
	Update(ctx context.Context, id string, in CarUpdated, author string) error
	Delete(ctx context.Context, id, author string) error
	LogSearch(ctx context.Context, q search.Query, resultsCount int, author string)
}

// SearchRecorder records searches best-effort
type SearchRecorder interface {
	Record(ctx context.Context, q search.Query, resultsCount int, author string)
}

// Service is the event-sourced car repository
type Service struct {
	eventStore        store.EventStoreInterface
	searches          SearchRecorder
	snapshotThreshold int
	now               func() time.Time
}

var _ Repository = (*Service)(nil)

// NewService creates a new car service. searches may be nil, and a
// snapshotThreshold of zero disables snapshots.
func NewService(es store.EventStoreInterface, searches SearchRecorder, snapshotThreshold int) *Service {
	return &Service{
		eventStore:        es,
		searches:          searches,
		snapshotThreshold: snapshotThreshold,
		now:               time.Now,
	}
}

// Create adds a new car and returns its id
func (s *Service) Create(ctx context.Context, in CarAdded, author string) (string, error) {
	return s.create(ctx, uuid.New().String(), in, author)
}

func (s *Service) create(ctx context.Context, id string, in CarAdded, author string) (string, error) {
	if err := aggregate.Validate(in); err != nil {
		return "", err
	}
	_, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:     id,
		AggregateType:   AggregateType,
		EventType:       EventCarAdded,
		UserID:          author,
		Data:            in,
		ExpectedVersion: 0,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges the provided fields into an existing car
func (s *Service) Update(ctx context.Context, id string, in CarUpdated, author string) error {
	if in.IsEmpty() {
		return ErrNoFieldsToUpdate
	}
	if err := aggregate.Validate(in); err != nil {
		return err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	event, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:     id,
		AggregateType:   AggregateType,
		EventType:       EventCarUpdated,
		UserID:          author,
		Data:            in,
		ExpectedVersion: c.Version,
	})
	if err != nil {
		return err
	}
	aggregate.SnapshotAfterAppend(ctx, s.eventStore, c, event, AggregateType, s.snapshotThreshold)
	return nil
}

// Delete appends a tombstone. The car's events are kept.
func (s *Service) Delete(ctx context.Context, id, author string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	event, err := s.eventStore.Append(ctx, store.AppendRequest{
		AggregateID:     id,
		AggregateType:   AggregateType,
		EventType:       EventCarDeleted,
		UserID:          author,
		Data:            CarDeleted{DeletedAt: s.now().UTC()},
		ExpectedVersion: c.Version,
	})
	if err != nil {
		return err
	}
	aggregate.SnapshotAfterAppend(ctx, s.eventStore, c, event, AggregateType, s.snapshotThreshold)
	return nil
}

// Get returns a car that exists and is not deleted
func (s *Service) Get(ctx context.Context, id string) (*Car, error) {
	c, found, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found || c.Deleted {
		return nil, ErrCarNotFound
	}
	return c, nil
}

// GetIncludingDeleted returns the projected car even when it is deleted
func (s *Service) GetIncludingDeleted(ctx context.Context, id string) (*Car, error) {
	c, found, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCarNotFound
	}
	return c, nil
}

func (s *Service) load(ctx context.Context, id string) (*Car, bool, error) {
	return aggregate.LoadAggregate(ctx, s.eventStore, id, func() *Car { return New(id) })
}

// ListActive returns every car that is not deleted, in creation order
func (s *Service) ListActive(ctx context.Context) ([]*Car, error) {
	added, err := s.eventStore.GetEventsByType(ctx, EventCarAdded)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(added))
	cars := make([]*Car, 0, len(added))
	for _, e := range added {
		if seen[e.AggregateID] {
			continue
		}
		seen[e.AggregateID] = true

		c, err := s.Get(ctx, e.AggregateID)
		if errors.Is(err, ErrCarNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cars = append(cars, c)
	}
	return cars, nil
}

// Search filters active, available cars and records the search
func (s *Service) Search(ctx context.Context, q search.Query, author string) ([]*Car, error) {
	if err := aggregate.Validate(q); err != nil {
		return nil, err
	}
	cars, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	results := Filter(cars, q)
	s.LogSearch(ctx, q, len(results), author)
	return results, nil
}

// LogSearch records a search without running it
func (s *Service) LogSearch(ctx context.Context, q search.Query, resultsCount int, author string) {
	if s.searches == nil {
		return
	}
	s.searches.Record(ctx, q, resultsCount, author)
}

// Filter keeps available cars matching every filter set in q
func Filter(cars []*Car, q search.Query) []*Car {
	location := strings.ToLower(strings.TrimSpace(q.Location))
	out := make([]*Car, 0, len(cars))
	for _, c := range cars {
		if !c.Available || c.Deleted {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(c.Location), location) {
			continue
		}
		if q.CarType != "" && c.CarType != q.CarType {
			continue
		}
		if q.MaxPrice != nil && c.DailyRate > *q.MaxPrice {
			continue
		}
		if q.Transmission != "" && c.Transmission != q.Transmission {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SeedSampleCars appends the demo fleet when no car was ever added.
// It returns the number of cars written.
func (s *Service) SeedSampleCars(ctx context.Context) (int, error) {
	existing, err := s.eventStore.GetEventsByType(ctx, EventCarAdded)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	written := 0
	for _, sample := range SampleCars() {
		if _, err := s.create(ctx, sample.ID, sample.Car, "system"); err != nil {
			return written, err
		}
		written++
	}
	log.Info().Str("component", "car").Int("cars", written).Msg("seeded sample cars")
	return written, nil
}
