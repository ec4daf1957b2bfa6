package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/car-rental-events/internal/infrastructure/store/migrations"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pgEventColumns = `seq, event_id, event_type, aggregate_id, aggregate_type, data, user_id, created_at, version`

	pgUniqueViolation = "23505"

	// appends with AnyVersion retry this many times when a concurrent
	// writer took the version they computed
	pgAppendAttempts = 3
)

// PostgresEventStore stores events in PostgreSQL
type PostgresEventStore struct {
	db         *sql.DB
	publishers []Publisher
	now        func() time.Time
}

func NewPostgresEventStore(db *sql.DB, publishers ...Publisher) *PostgresEventStore {
	return &PostgresEventStore{
		db:         db,
		publishers: publishers,
		now:        time.Now,
	}
}

// Migrate creates the events and snapshots tables if they are missing
func (es *PostgresEventStore) Migrate(ctx context.Context) error {
	if _, err := es.db.ExecContext(ctx, migrations.Postgres); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// Append stores an event in PostgreSQL and publishes it
func (es *PostgresEventStore) Append(ctx context.Context, req AppendRequest) (*Event, error) {
	if err := validateRequest(req); err != nil {
		return nil, appendFailed(err)
	}
	jsonData, err := json.Marshal(req.Data)
	if err != nil {
		return nil, appendFailed(err)
	}

	var event *Event
	for attempt := 1; ; attempt++ {
		event, err = es.insert(ctx, req, jsonData)
		if err == nil {
			break
		}
		if errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		if !isPgUniqueViolation(err) {
			return nil, appendFailed(err)
		}
		if req.ExpectedVersion != AnyVersion || attempt == pgAppendAttempts {
			return nil, fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
	}

	publishAll(ctx, es.publishers, *event)
	return event, nil
}

// insert reads the aggregate's head and inserts the next version. The
// UNIQUE(aggregate_id, version) constraint rejects a concurrent writer
// that computed the same version.
func (es *PostgresEventStore) insert(ctx context.Context, req AppendRequest, data []byte) (*Event, error) {
	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		current int
		lastTS  time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, created_at FROM events WHERE aggregate_id = $1 ORDER BY version DESC LIMIT 1`,
		req.AggregateID,
	).Scan(&current, &lastTS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if verr := checkVersion(req.ExpectedVersion, current); verr != nil {
		return nil, verr
	}

	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   req.AggregateID,
		AggregateType: req.AggregateType,
		EventType:     req.EventType,
		Data:          data,
		UserID:        req.UserID,
		Timestamp:     nextTimestamp(es.now().UTC().Truncate(time.Microsecond), lastTS),
		Version:       current + 1,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (event_id, event_type, aggregate_id, aggregate_type, data, user_id, created_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING seq`,
		event.ID,
		event.EventType,
		event.AggregateID,
		event.AggregateType,
		string(event.Data),
		nullString(event.UserID),
		event.Timestamp,
		event.Version,
	).Scan(&event.Sequence)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEvents returns all events for an aggregate from PostgreSQL
func (es *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns events after a snapshot version
func (es *PostgresEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	events, err := es.query(ctx,
		`SELECT `+pgEventColumns+`
		 FROM events
		 WHERE aggregate_id = $1 AND version > $2
		 ORDER BY version ASC`,
		aggregateID, fromVersion,
	)
	if err != nil {
		return nil, readFailed("events_for", aggregateID, err)
	}
	return events, nil
}

// GetEventsByType returns all events of one event type in append order
func (es *PostgresEventStore) GetEventsByType(ctx context.Context, eventType string) ([]Event, error) {
	events, err := es.query(ctx,
		`SELECT `+pgEventColumns+`
		 FROM events
		 WHERE event_type = $1
		 ORDER BY seq ASC`,
		eventType,
	)
	if err != nil {
		return nil, readFailed("events_by_type", eventType, err)
	}
	return events, nil
}

// GetAllEvents returns all events from PostgreSQL
func (es *PostgresEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	events, err := es.query(ctx, `SELECT `+pgEventColumns+` FROM events ORDER BY seq ASC`)
	if err != nil {
		return nil, readFailed("all_events", "", err)
	}
	return events, nil
}

// SaveSnapshot upserts the aggregate's snapshot
func (es *PostgresEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE SET
		   aggregate_type = EXCLUDED.aggregate_type,
		   version = EXCLUDED.version,
		   state = EXCLUDED.state,
		   created_at = EXCLUDED.created_at`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		string(snapshot.State),
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the aggregate's snapshot or nil when none was taken
func (es *PostgresEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var (
		snap  Snapshot
		state []byte
	)
	err := es.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &state, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, readFailed("snapshot", aggregateID, err)
	}
	snap.State = json.RawMessage(state)
	return &snap, nil
}

func (es *PostgresEventStore) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			data   []byte
			userID sql.NullString
		)
		if err := rows.Scan(&e.Sequence, &e.ID, &e.EventType, &e.AggregateID, &e.AggregateType, &data, &userID, &e.Timestamp, &e.Version); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.UserID = userID.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func isPgUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
