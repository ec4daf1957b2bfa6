package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventStore is an in-memory event log. It keeps a global append order
// plus per-aggregate and per-type indexes.
type EventStore struct {
	mu          sync.RWMutex
	log         []Event
	byAggregate map[string][]int // aggregateID -> positions in log
	byType      map[string][]int // eventType -> positions in log
	snapshots   map[string]Snapshot
	publishers  []Publisher
	now         func() time.Time
}

func NewEventStore(publishers ...Publisher) *EventStore {
	return &EventStore{
		byAggregate: make(map[string][]int),
		byType:      make(map[string][]int),
		snapshots:   make(map[string]Snapshot),
		publishers:  publishers,
		now:         time.Now,
	}
}

// Append stores an event and publishes it
func (es *EventStore) Append(ctx context.Context, req AppendRequest) (*Event, error) {
	if err := validateRequest(req); err != nil {
		return nil, appendFailed(err)
	}
	jsonData, err := json.Marshal(req.Data)
	if err != nil {
		return nil, appendFailed(err)
	}

	es.mu.Lock()
	positions := es.byAggregate[req.AggregateID]
	current := len(positions)
	if err := checkVersion(req.ExpectedVersion, current); err != nil {
		es.mu.Unlock()
		return nil, err
	}
	ts := es.now().UTC()
	if current > 0 {
		ts = nextTimestamp(ts, es.log[positions[current-1]].Timestamp)
	}
	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   req.AggregateID,
		AggregateType: req.AggregateType,
		EventType:     req.EventType,
		Data:          jsonData,
		UserID:        req.UserID,
		Timestamp:     ts,
		Version:       current + 1,
		Sequence:      int64(len(es.log) + 1),
	}
	pos := len(es.log)
	es.log = append(es.log, event)
	es.byAggregate[req.AggregateID] = append(positions, pos)
	es.byType[req.EventType] = append(es.byType[req.EventType], pos)
	es.mu.Unlock()

	publishAll(ctx, es.publishers, event)
	return &event, nil
}

// GetEvents returns all events for an aggregate, oldest first
func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns the aggregate's events with a version above fromVersion
func (es *EventStore) GetEventsFromVersion(_ context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	positions := es.byAggregate[aggregateID]
	if fromVersion >= len(positions) {
		return nil, nil
	}
	if fromVersion < 0 {
		fromVersion = 0
	}
	return es.collect(positions[fromVersion:]), nil
}

// GetEventsByType returns all events of one type in append order
func (es *EventStore) GetEventsByType(_ context.Context, eventType string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.collect(es.byType[eventType]), nil
}

// GetAllEvents returns all events in append order
func (es *EventStore) GetAllEvents(_ context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	all := make([]Event, len(es.log))
	copy(all, es.log)
	return all, nil
}

// SaveSnapshot replaces the aggregate's snapshot
func (es *EventStore) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.snapshots[snapshot.AggregateID] = *snapshot
	return nil
}

// GetSnapshot returns the aggregate's snapshot or nil when none was taken
func (es *EventStore) GetSnapshot(_ context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	snap, ok := es.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (es *EventStore) collect(positions []int) []Event {
	if len(positions) == 0 {
		return nil
	}
	out := make([]Event, 0, len(positions))
	for _, pos := range positions {
		out = append(out, es.log[pos])
	}
	return out
}
