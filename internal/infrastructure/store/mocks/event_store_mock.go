package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing.
// It honours ExpectedVersion the same way the real stores do.
type MockEventStore struct {
	mu        sync.RWMutex
	events    map[string][]store.Event
	order     []string // event ids in append order
	snapshots map[string]store.Snapshot

	// For tracking calls in tests
	AppendCalls    []store.AppendRequest
	AppendErr      error
	ReadErr        error
	AppendCallback func(ctx context.Context, req store.AppendRequest) (*store.Event, error)
	SnapshotCalls  []store.Snapshot
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		snapshots:   make(map[string]store.Snapshot),
		AppendCalls: make([]store.AppendRequest, 0),
	}
}

// Append stores an event in memory
func (m *MockEventStore) Append(ctx context.Context, req store.AppendRequest) (*store.Event, error) {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, req)
	callback := m.AppendCallback
	m.mu.Unlock()

	if callback != nil {
		return callback(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	current := len(m.events[req.AggregateID])
	if req.ExpectedVersion != store.AnyVersion && req.ExpectedVersion != current {
		return nil, fmt.Errorf("%w: expected version %d, current %d", store.ErrVersionConflict, req.ExpectedVersion, current)
	}
	event, err := newEvent(req.AggregateID, req.AggregateType, req.EventType, req.UserID, req.Data, current+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrAppendFailed, err)
	}
	m.events[req.AggregateID] = append(m.events[req.AggregateID], event)
	m.order = append(m.order, event.ID)
	return &event, nil
}

// GetEvents returns events for an aggregate
func (m *MockEventStore) GetEvents(ctx context.Context, aggregateID string) ([]store.Event, error) {
	return m.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns events with a version above fromVersion
func (m *MockEventStore) GetEventsFromVersion(_ context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}

	var out []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetEventsByType returns events of one type in append order
func (m *MockEventStore) GetEventsByType(ctx context.Context, eventType string) ([]store.Event, error) {
	all, err := m.GetAllEvents(ctx)
	if err != nil {
		return nil, err
	}
	var out []store.Event
	for _, e := range all {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAllEvents returns all events in append order
func (m *MockEventStore) GetAllEvents(_ context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}

	byID := make(map[string]store.Event)
	for _, events := range m.events {
		for _, e := range events {
			byID[e.ID] = e
		}
	}
	all := make([]store.Event, 0, len(m.order))
	for _, id := range m.order {
		if e, ok := byID[id]; ok {
			all = append(all, e)
		}
	}
	return all, nil
}

// SaveSnapshot records and stores a snapshot
func (m *MockEventStore) SaveSnapshot(_ context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SnapshotCalls = append(m.SnapshotCalls, *snapshot)
	m.snapshots[snapshot.AggregateID] = *snapshot
	return nil
}

// GetSnapshot returns the stored snapshot or nil
func (m *MockEventStore) GetSnapshot(_ context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	snap, ok := m.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.order = nil
	m.snapshots = make(map[string]store.Snapshot)
	m.AppendCalls = make([]store.AppendRequest, 0)
	m.SnapshotCalls = nil
	m.AppendErr = nil
	m.ReadErr = nil
	m.AppendCallback = nil
}

// SetEvents sets events directly for testing
func (m *MockEventStore) SetEvents(aggregateID string, events []store.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[aggregateID] = events
	for _, e := range events {
		m.order = append(m.order, e.ID)
	}
}

// AddEvent adds a single event for testing without recording an Append call
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, err := newEvent(aggregateID, aggregateType, eventType, "system", data, len(m.events[aggregateID])+1)
	if err != nil {
		return err
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	m.order = append(m.order, event.ID)
	return nil
}

func newEvent(aggregateID, aggregateType, eventType, userID string, data any, version int) (store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return store.Event{}, err
	}
	return store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		UserID:        userID,
		Timestamp:     time.Now().UTC(),
		Version:       version,
	}, nil
}
