package store

import (
	"encoding/json"
	"time"
)

// DefaultSnapshotThreshold is the number of events between snapshots
const DefaultSnapshotThreshold = 10

// Snapshot represents a point-in-time state of an aggregate.
// It is a cache: the event log stays the source of truth.
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event version at snapshot time
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}
