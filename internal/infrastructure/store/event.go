package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	UserID        string          `json:"user_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	Sequence      int64           `json:"sequence,omitempty"`
}

// MarshalJSON returns the JSON encoding of the event
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct{ Alias }{Alias: Alias(e)})
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload of event %s: %w", e.EventType, e.ID, err)
	}
	return nil
}

// nextTimestamp keeps per-aggregate timestamps non-decreasing so that
// timestamp order and version order agree.
func nextTimestamp(now, last time.Time) time.Time {
	if now.Before(last) {
		return last
	}
	return now
}

func checkVersion(expected, current int) error {
	if expected != AnyVersion && expected != current {
		return fmt.Errorf("%w: expected version %d, current %d", ErrVersionConflict, expected, current)
	}
	return nil
}

func appendFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrAppendFailed, err)
}

func readFailed(op, key string, err error) error {
	log.Error().Err(err).Str("component", "event-store").Str("op", op).Str("key", key).
		Msg("event store read failed")
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}

func publishAll(ctx context.Context, publishers []Publisher, event Event) {
	for _, p := range publishers {
		if err := p.Publish(ctx, event.AggregateID, event); err != nil {
			log.Warn().Err(err).Str("component", "event-store").
				Str("event_id", event.ID).Str("event_type", event.EventType).
				Msg("failed to publish appended event")
		}
	}
}
