// Package relational holds the PostgreSQL CRUD implementation of the
// car repository, selected instead of the event-sourced one with
// CAR_BACKEND=postgres.
package relational

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

const carColumns = `id, make, model, year, car_type, transmission, daily_rate, available,
	location, fuel_type, seats, image_url, created_at, updated_at, deleted, version`

// CarRepository stores cars as mutable rows. Deletes are soft.
type CarRepository struct {
	db       *sql.DB
	searches car.SearchRecorder
	now      func() time.Time
}

var _ car.Repository = (*CarRepository)(nil)

// NewCarRepository creates a repository over db. searches may be nil.
func NewCarRepository(db *sql.DB, searches car.SearchRecorder) *CarRepository {
	return &CarRepository{db: db, searches: searches, now: time.Now}
}

// Migrate creates the cars table if it is missing
func (r *CarRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply cars schema: %w", err)
	}
	return nil
}

// ListActive returns every car that is not deleted, oldest first
func (r *CarRepository) ListActive(ctx context.Context) ([]*car.Car, error) {
	return r.query(ctx, "list_active",
		`SELECT `+carColumns+` FROM cars WHERE deleted = FALSE ORDER BY created_at ASC, id ASC`)
}

// Get returns a car that exists and is not deleted
func (r *CarRepository) Get(ctx context.Context, id string) (*car.Car, error) {
	cars, err := r.query(ctx, "get",
		`SELECT `+carColumns+` FROM cars WHERE id = $1 AND deleted = FALSE`, id)
	if err != nil {
		return nil, err
	}
	if len(cars) == 0 {
		return nil, car.ErrCarNotFound
	}
	return cars[0], nil
}

// Search filters available cars in SQL and records the search
func (r *CarRepository) Search(ctx context.Context, q search.Query, author string) ([]*car.Car, error) {
	if err := aggregate.Validate(q); err != nil {
		return nil, err
	}
	query, args := buildSearch(q)
	cars, err := r.query(ctx, "search", query, args...)
	if err != nil {
		return nil, err
	}
	r.LogSearch(ctx, q, len(cars), author)
	return cars, nil
}

// LogSearch records a search best-effort
func (r *CarRepository) LogSearch(ctx context.Context, q search.Query, resultsCount int, author string) {
	if r.searches == nil {
		return
	}
	r.searches.Record(ctx, q, resultsCount, author)
}

// Create inserts a new car and returns its id
func (r *CarRepository) Create(ctx context.Context, in car.CarAdded, author string) (string, error) {
	if err := aggregate.Validate(in); err != nil {
		return "", err
	}
	id := uuid.New().String()
	available := true
	if in.Available != nil {
		available = *in.Available
	}
	now := r.now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cars (`+carColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, 1)`,
		id, in.Make, in.Model, in.Year, in.CarType, in.Transmission, in.DailyRate, available,
		in.Location, in.FuelType, in.Seats, in.ImageURL, now, now,
	)
	if err != nil {
		return "", writeFailed("create", id, err)
	}
	log.Debug().Str("component", "relational").Str("car_id", id).Str("author", author).Msg("car created")
	return id, nil
}

// Update sets the provided columns on a live car
func (r *CarRepository) Update(ctx context.Context, id string, in car.CarUpdated, author string) error {
	if in.IsEmpty() {
		return car.ErrNoFieldsToUpdate
	}
	if err := aggregate.Validate(in); err != nil {
		return err
	}
	query, args := buildUpdate(id, in, r.now().UTC())
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return writeFailed("update", id, err)
	}
	return requireRow(res, id)
}

// Delete marks a live car deleted and unavailable
func (r *CarRepository) Delete(ctx context.Context, id, author string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cars SET deleted = TRUE, available = FALSE, updated_at = $2, version = version + 1
		 WHERE id = $1 AND deleted = FALSE`,
		id, r.now().UTC(),
	)
	if err != nil {
		return writeFailed("delete", id, err)
	}
	return requireRow(res, id)
}

func (r *CarRepository) query(ctx context.Context, op, query string, args ...any) ([]*car.Car, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, readFailed(op, err)
	}
	defer rows.Close()

	cars := make([]*car.Car, 0)
	for rows.Next() {
		var c car.Car
		if err := rows.Scan(&c.ID, &c.Make, &c.Model, &c.Year, &c.CarType, &c.Transmission, &c.DailyRate,
			&c.Available, &c.Location, &c.FuelType, &c.Seats, &c.ImageURL, &c.CreatedAt, &c.UpdatedAt,
			&c.Deleted, &c.Version); err != nil {
			return nil, readFailed(op, err)
		}
		cars = append(cars, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, readFailed(op, err)
	}
	return cars, nil
}

// buildSearch mirrors car.Filter in SQL
func buildSearch(q search.Query) (string, []any) {
	var (
		where = []string{"deleted = FALSE", "available = TRUE"}
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if loc := strings.TrimSpace(q.Location); loc != "" {
		add("location ILIKE $%d", "%"+escapeLike(loc)+"%")
	}
	if q.CarType != "" {
		add("car_type = $%d", q.CarType)
	}
	if q.MaxPrice != nil {
		add("daily_rate <= $%d", *q.MaxPrice)
	}
	if q.Transmission != "" {
		add("transmission = $%d", q.Transmission)
	}
	return `SELECT ` + carColumns + ` FROM cars WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at ASC, id ASC`, args
}

// buildUpdate sets only the columns present in u. $1 is the id.
func buildUpdate(id string, u car.CarUpdated, now time.Time) (string, []any) {
	var (
		sets []string
		args = []any{id}
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Make != nil {
		set("make", *u.Make)
	}
	if u.Model != nil {
		set("model", *u.Model)
	}
	if u.Year != nil {
		set("year", *u.Year)
	}
	if u.CarType != nil {
		set("car_type", *u.CarType)
	}
	if u.Transmission != nil {
		set("transmission", *u.Transmission)
	}
	if u.DailyRate != nil {
		set("daily_rate", *u.DailyRate)
	}
	if u.Available != nil {
		set("available", *u.Available)
	}
	if u.Location != nil {
		set("location", *u.Location)
	}
	if u.FuelType != nil {
		set("fuel_type", *u.FuelType)
	}
	if u.Seats != nil {
		set("seats", *u.Seats)
	}
	if u.ImageURL != nil {
		set("image_url", *u.ImageURL)
	}
	set("updated_at", now)
	sets = append(sets, "version = version + 1")

	return `UPDATE cars SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 AND deleted = FALSE`, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return writeFailed("rows_affected", id, err)
	}
	if n == 0 {
		return car.ErrCarNotFound
	}
	return nil
}

func readFailed(op string, err error) error {
	log.Error().Err(err).Str("component", "relational").Str("op", op).Msg("car query failed")
	return fmt.Errorf("%w: cars %s: %w", store.ErrStoreUnavailable, op, err)
}

func writeFailed(op, id string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: cars %s %s: %w", store.ErrAppendFailed, op, id, err)
}
