package projection

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/domain/booking"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/domain/user"
	"github.com/example/car-rental-events/internal/infrastructure/kafka"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/rs/zerolog/log"
)

// Read store collections
const (
	CollectionCars     = "cars"
	CollectionUsers    = "users"
	CollectionBookings = "bookings"
	CollectionSearches = "searches"
	CollectionStats    = "search_stats"

	// StatsID is the single key of CollectionStats
	StatsID = "all"
)

// Projector folds the event log into the read store. Every stored value is
// replaced rather than mutated, so readers holding an older pointer never
// observe a half-applied event.
type Projector struct {
	mu        sync.Mutex
	readStore store.ReadStoreInterface
	// events that arrived ahead of a missing version, by aggregate id
	pending map[string]map[int]store.Event
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{readStore: readStore, pending: make(map[string]map[int]store.Event)}
}

// Publish lets the projector sit behind an event store as an in-process
// publisher.
func (p *Projector) Publish(_ context.Context, _ string, event any) error {
	switch e := event.(type) {
	case store.Event:
		return p.Apply(e)
	case *store.Event:
		return p.Apply(*e)
	default:
		return fmt.Errorf("projector: unexpected event type %T", event)
	}
}

// HandleEvent is the kafka.MessageHandler entry point
func (p *Projector) HandleEvent(_ context.Context, _, value []byte) error {
	event, err := kafka.DecodeEvent(value)
	if err != nil {
		return err
	}
	return p.Apply(event)
}

// Replay rebuilds the read side from the whole log, in append order.
func (p *Projector) Replay(ctx context.Context, es store.EventStoreInterface) (int, error) {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("replay read model: %w", err)
	}
	for _, event := range events {
		if err := p.Apply(event); err != nil {
			log.Warn().Err(err).Str("component", "projector").Str("event_id", event.ID).
				Msg("skipping event during replay")
		}
	}
	log.Info().Str("component", "projector").Int("events", len(events)).Msg("read model rebuilt")
	return len(events), nil
}

// Apply projects one event. Events at or below the version already
// projected for their aggregate are ignored, so redelivery is harmless.
// An event that skips a version is held until the gap is filled.
func (p *Projector) Apply(event store.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log.Debug().Str("component", "projector").
		Str("event_type", event.EventType).
		Str("aggregate_id", event.AggregateID).
		Int("version", event.Version).
		Msg("received event")

	switch event.AggregateType {
	case car.AggregateType:
		project(p, CollectionCars, event, car.New, nil)
	case user.AggregateType:
		project(p, CollectionUsers, event, user.New, func(u *user.User) {
			// the read side never serves credentials
			u.PasswordHash = ""
		})
	case booking.AggregateType:
		project(p, CollectionBookings, event, booking.New, nil)
	case search.AggregateType:
		p.applySearch(event)
	default:
		log.Debug().Str("component", "projector").Str("aggregate_type", event.AggregateType).
			Msg("ignoring event of unknown aggregate type")
	}
	return nil
}

// Pending reports how many events are waiting for an earlier version
func (p *Projector) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, held := range p.pending {
		n += len(held)
	}
	return n
}

// project folds event, and any held events it unblocks, into a copy of
// the aggregate stored under collection. Version 0 means the backend does
// not number events, and such events are applied as they come.
func project[S any, PS interface {
	*S
	aggregate.Aggregate
}](p *Projector, collection string, event store.Event, fresh func(id string) PS, scrub func(PS)) {
	var next PS
	if current, ok := p.readStore.Get(collection, event.AggregateID); ok {
		copied := *current.(PS)
		next = PS(&copied)
	} else {
		next = fresh(event.AggregateID)
	}

	batch := []store.Event{event}
	if event.Version != 0 {
		head := next.GetVersion()
		switch {
		case event.Version <= head:
			return
		case event.Version > head+1:
			p.hold(event)
			log.Warn().Str("component", "projector").
				Str("aggregate_id", event.AggregateID).
				Int("version", event.Version).
				Int("projected", head).
				Msg("holding event until the missing versions arrive")
			return
		}
		batch = append(batch, p.release(event.AggregateID, event.Version)...)
	}

	aggregate.Replay(next, batch)
	if scrub != nil {
		scrub(next)
	}
	p.readStore.Set(collection, event.AggregateID, next)
}

func (p *Projector) hold(event store.Event) {
	held := p.pending[event.AggregateID]
	if held == nil {
		held = make(map[int]store.Event)
		p.pending[event.AggregateID] = held
	}
	held[event.Version] = event
}

// release removes the held events that directly follow version and
// returns them in order
func (p *Projector) release(aggregateID string, version int) []store.Event {
	held, ok := p.pending[aggregateID]
	if !ok {
		return nil
	}
	var out []store.Event
	for {
		next, ok := held[version+1]
		if !ok {
			break
		}
		out = append(out, next)
		delete(held, version+1)
		version++
	}
	for v := range held {
		if v <= version {
			delete(held, v)
		}
	}
	if len(held) == 0 {
		delete(p.pending, aggregateID)
	}
	return out
}

func (p *Projector) applySearch(event store.Event) {
	if event.EventType != search.EventSearchPerformed {
		return
	}
	if _, seen := p.readStore.Get(CollectionSearches, event.AggregateID); seen {
		return
	}
	p.readStore.Set(CollectionSearches, event.AggregateID, event.Version)

	next := search.NewStatistics()
	if current, ok := p.readStore.Get(CollectionStats, StatsID); ok {
		next = cloneStatistics(current.(*search.Statistics))
	}
	next.Add(event)
	p.readStore.Set(CollectionStats, StatsID, next)
}

func cloneStatistics(s *search.Statistics) *search.Statistics {
	out := search.NewStatistics()
	out.TotalSearches = s.TotalSearches
	for k, v := range s.PopularLocations {
		out.PopularLocations[k] = v
	}
	for k, v := range s.PopularCarTypes {
		out.PopularCarTypes[k] = v
	}
	out.RecentSearches = append(out.RecentSearches, s.RecentSearches...)
	return out
}
