package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/car-rental-events/internal/infrastructure/store/migrations"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Fixed-width so that lexical order on the column is chronological.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteEventColumns = `seq, event_id, event_type, aggregate_id, aggregate_type, data, user_id, timestamp, version`

// SQLiteEventStore stores events in an embedded SQLite database
type SQLiteEventStore struct {
	db         *sql.DB
	publishers []Publisher
	now        func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers, which makes the
	// version check and the insert atomic with respect to each other.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

func NewSQLiteEventStore(db *sql.DB, publishers ...Publisher) *SQLiteEventStore {
	return &SQLiteEventStore{db: db, publishers: publishers, now: time.Now}
}

// Append inserts the event inside a transaction that also reads the
// aggregate's current version.
func (es *SQLiteEventStore) Append(ctx context.Context, req AppendRequest) (*Event, error) {
	if err := validateRequest(req); err != nil {
		return nil, appendFailed(err)
	}
	jsonData, err := json.Marshal(req.Data)
	if err != nil {
		return nil, appendFailed(err)
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, appendFailed(err)
	}
	defer tx.Rollback()

	var (
		current int
		lastTS  string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, timestamp FROM events WHERE aggregate_id = ? ORDER BY version DESC LIMIT 1`,
		req.AggregateID,
	).Scan(&current, &lastTS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appendFailed(err)
	}
	if err := checkVersion(req.ExpectedVersion, current); err != nil {
		return nil, err
	}

	ts := es.now().UTC()
	if lastTS != "" {
		if last, perr := time.Parse(time.RFC3339Nano, lastTS); perr == nil {
			ts = nextTimestamp(ts, last)
		}
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
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (event_id, event_type, aggregate_id, aggregate_type, data, user_id, timestamp, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.EventType,
		event.AggregateID,
		event.AggregateType,
		string(event.Data),
		nullString(event.UserID),
		event.Timestamp.Format(sqliteTimeLayout),
		event.Version,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
		return nil, appendFailed(err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		event.Sequence = seq
	}
	if err := tx.Commit(); err != nil {
		return nil, appendFailed(err)
	}

	publishAll(ctx, es.publishers, event)
	return &event, nil
}

// GetEvents returns all events for an aggregate, oldest first
func (es *SQLiteEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns the aggregate's events with a version above fromVersion
func (es *SQLiteEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	events, err := es.query(ctx,
		`SELECT `+sqliteEventColumns+` FROM events WHERE aggregate_id = ? AND version > ? ORDER BY version ASC`,
		aggregateID, fromVersion)
	if err != nil {
		return nil, readFailed("events_for", aggregateID, err)
	}
	return events, nil
}

// GetEventsByType returns all events of one type in append order
func (es *SQLiteEventStore) GetEventsByType(ctx context.Context, eventType string) ([]Event, error) {
	events, err := es.query(ctx,
		`SELECT `+sqliteEventColumns+` FROM events WHERE event_type = ? ORDER BY seq ASC`,
		eventType)
	if err != nil {
		return nil, readFailed("events_by_type", eventType, err)
	}
	return events, nil
}

// GetAllEvents returns the whole log in append order
func (es *SQLiteEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	events, err := es.query(ctx, `SELECT `+sqliteEventColumns+` FROM events ORDER BY seq ASC`)
	if err != nil {
		return nil, readFailed("all_events", "", err)
	}
	return events, nil
}

// SaveSnapshot upserts the aggregate's snapshot
func (es *SQLiteEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(aggregate_id) DO UPDATE SET
		   aggregate_type = excluded.aggregate_type,
		   version = excluded.version,
		   state = excluded.state,
		   created_at = excluded.created_at`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		string(snapshot.State),
		snapshot.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the aggregate's snapshot or nil when none was taken
func (es *SQLiteEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var (
		snap      Snapshot
		state     string
		createdAt string
	)
	err := es.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at FROM snapshots WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, readFailed("snapshot", aggregateID, err)
	}
	snap.State = json.RawMessage(state)
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &snap, nil
}

func (es *SQLiteEventStore) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			data   string
			userID sql.NullString
			ts     string
		)
		if err := rows.Scan(&e.Sequence, &e.ID, &e.EventType, &e.AggregateID, &e.AggregateType, &data, &userID, &ts, &e.Version); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.UserID = userID.String
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp of event %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
