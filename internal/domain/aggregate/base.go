package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/rs/zerolog/log"
)

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetVersion() int
	SetVersion(int)
	ApplyEvent(store.Event) error
}

// LoadAggregate loads an aggregate by replaying events, using snapshot if available.
// Returns the aggregate, a boolean indicating if data was found, and any error.
func LoadAggregate[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	id string,
	newAggregate func() T,
) (T, bool, error) {
	var zero T
	agg := newAggregate()

	snapshot, err := eventStore.GetSnapshot(ctx, id)
	if err != nil {
		return zero, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var events []store.Event
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, agg); err != nil {
			// A snapshot is only a cache; fall back to a full replay.
			log.Warn().Err(err).Str("component", "aggregate").Str("aggregate_id", id).
				Msg("discarding unreadable snapshot")
			agg = newAggregate()
			snapshot = nil
		} else {
			agg.SetVersion(snapshot.Version)
		}
	}

	if snapshot != nil {
		events, err = eventStore.GetEventsFromVersion(ctx, id, snapshot.Version)
	} else {
		events, err = eventStore.GetEvents(ctx, id)
	}
	if err != nil {
		return zero, false, err
	}

	hasData := snapshot != nil || len(events) > 0
	Replay(agg, events)
	return agg, hasData, nil
}

// Replay applies events in order. An event that cannot be applied is
// logged and skipped, and the aggregate version still advances past it.
func Replay(agg Aggregate, events []store.Event) {
	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			log.Error().Err(err).
				Str("component", "aggregate").
				Str("aggregate_id", event.AggregateID).
				Str("event_id", event.ID).
				Str("event_type", event.EventType).
				Int("version", event.Version).
				Msg("skipping event that cannot be applied")
		}
		agg.SetVersion(event.Version)
	}
}

// MaybeCreateSnapshot stores the aggregate state every threshold versions.
// A threshold of zero or less disables snapshots.
func MaybeCreateSnapshot(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	aggregateType string,
	threshold int,
) error {
	version := agg.GetVersion()
	if threshold <= 0 || version == 0 || version%threshold != 0 {
		return nil
	}

	state, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate state: %w", err)
	}

	snapshot := &store.Snapshot{
		AggregateID:   agg.GetID(),
		AggregateType: aggregateType,
		Version:       version,
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
	if err := eventStore.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SnapshotAfterAppend applies the freshly appended event to agg and takes a
// snapshot when due. It does nothing unless the event directly follows
// agg's version. Snapshot failures are logged only.
func SnapshotAfterAppend(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	event *store.Event,
	aggregateType string,
	threshold int,
) {
	if event == nil || event.Version != agg.GetVersion()+1 {
		return
	}
	Replay(agg, []store.Event{*event})
	if threshold <= 0 {
		return
	}
	if err := MaybeCreateSnapshot(ctx, eventStore, agg, aggregateType, threshold); err != nil {
		log.Warn().Err(err).Str("component", "aggregate").Str("aggregate_id", agg.GetID()).
			Msg("snapshot failed")
	}
}
