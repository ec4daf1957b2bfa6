package store

import (
	"context"
	"errors"
)

// AnyVersion disables the optimistic concurrency check on Append.
const AnyVersion = -1

var (
	// ErrAppendFailed wraps every failure to durably record an event.
	ErrAppendFailed = errors.New("event append failed")
	// ErrVersionConflict means another writer appended to the aggregate first.
	ErrVersionConflict = errors.New("aggregate version conflict")
	// ErrStoreUnavailable wraps read-side storage failures.
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// AppendRequest describes one event to be appended to the log
type AppendRequest struct {
	AggregateID   string
	AggregateType string
	EventType     string
	UserID        string
	Data          any
	// ExpectedVersion is the aggregate version the caller projected.
	// Use 0 for a new aggregate and AnyVersion to skip the check.
	ExpectedVersion int
}

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, req AppendRequest) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)
	GetEventsByType(ctx context.Context, eventType string) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// Publisher receives every event after it has been durably appended
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

func validateRequest(req AppendRequest) error {
	if req.AggregateID == "" {
		return errors.New("aggregate id is required")
	}
	if req.EventType == "" {
		return errors.New("event type is required")
	}
	return nil
}
