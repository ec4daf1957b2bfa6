package relational

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/car-rental-events/internal/domain/aggregate"
	"github.com/example/car-rental-events/internal/domain/car"
	"github.com/example/car-rental-events/internal/domain/search"
	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearch_NoFilters(t *testing.T) {
	query, args := buildSearch(search.Query{})

	assert.Contains(t, query, "WHERE deleted = FALSE AND available = TRUE ORDER BY")
	assert.Empty(t, args)
}

func TestBuildSearch_AllFilters(t *testing.T) {
	maxPrice := 250.0
	query, args := buildSearch(search.Query{
		Location:     " Tel_Aviv ",
		CarType:      "compact",
		MaxPrice:     &maxPrice,
		Transmission: "manual",
	})

	assert.Contains(t, query, "location ILIKE $1")
	assert.Contains(t, query, "car_type = $2")
	assert.Contains(t, query, "daily_rate <= $3")
	assert.Contains(t, query, "transmission = $4")
	assert.Equal(t, []any{`%Tel\_Aviv%`, "compact", 250.0, "manual"}, args)
}

func TestBuildUpdate_OnlyProvidedColumns(t *testing.T) {
	rate := 150.0
	available := false
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	query, args := buildUpdate("car-9", car.CarUpdated{DailyRate: &rate, Available: &available}, now)

	assert.Equal(t,
		"UPDATE cars SET daily_rate = $2, available = $3, updated_at = $4, version = version + 1 WHERE id = $1 AND deleted = FALSE",
		query)
	assert.Equal(t, []any{"car-9", 150.0, false, now}, args)
}

func TestCarRepository_RejectsBeforeTouchingDatabase(t *testing.T) {
	// a nil db would panic if any of these reached SQL
	repo := NewCarRepository(nil, nil)
	ctx := context.Background()

	_, err := repo.Create(ctx, car.CarAdded{}, "admin")
	assert.ErrorIs(t, err, aggregate.ErrValidation)

	err = repo.Update(ctx, "car-1", car.CarUpdated{}, "admin")
	assert.ErrorIs(t, err, car.ErrNoFieldsToUpdate)

	_, err = repo.Search(ctx, search.Query{Transmission: "cvt"}, "")
	assert.ErrorIs(t, err, aggregate.ErrValidation)
}

// ============================================
// SQL round trips against sqlmock
// ============================================

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*CarRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewCarRepository(db, nil)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func carRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "make", "model", "year", "car_type", "transmission", "daily_rate", "available",
		"location", "fuel_type", "seats", "image_url", "created_at", "updated_at", "deleted", "version",
	})
}

func TestCarRepository_Get(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM cars WHERE id = \$1 AND deleted = FALSE`).
		WithArgs("car-1").
		WillReturnRows(carRows().AddRow("car-1", "Kia", "Picanto", 2021, "compact", "manual", 120.0, true,
			"Haifa", "petrol", 4, "", fixedNow, fixedNow, false, 1))

	c, err := repo.Get(context.Background(), "car-1")
	require.NoError(t, err)
	assert.Equal(t, "Kia", c.Make)
	assert.Equal(t, 120.0, c.DailyRate)
	assert.Equal(t, 1, c.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCarRepository_GetMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM cars WHERE id = \$1`).
		WithArgs("car-404").
		WillReturnRows(carRows())

	_, err := repo.Get(context.Background(), "car-404")
	assert.ErrorIs(t, err, car.ErrCarNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCarRepository_QueryFailureIsUnavailable(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM cars WHERE deleted = FALSE ORDER BY`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.ListActive(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCarRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO cars`).
		WithArgs(sqlmock.AnyArg(), "Kia", "Picanto", 2021, "compact", "", 120.0, true,
			"Haifa", "", 0, "", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := repo.Create(context.Background(), car.CarAdded{
		Make: "Kia", Model: "Picanto", Year: 2021, CarType: "compact", DailyRate: 120, Location: "Haifa",
	}, "admin-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCarRepository_UpdateMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	rate := 99.0

	mock.ExpectExec(`UPDATE cars SET daily_rate = \$2`).
		WithArgs("car-404", 99.0, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "car-404", car.CarUpdated{DailyRate: &rate}, "admin-1")
	assert.ErrorIs(t, err, car.ErrCarNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCarRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE cars SET deleted = TRUE`).
		WithArgs("car-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "car-1", "admin-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCarRepository_DeleteFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE cars SET deleted = TRUE`).
		WillReturnError(errors.New("deadlock detected"))

	err := repo.Delete(context.Background(), "car-1", "admin-1")
	assert.ErrorIs(t, err, store.ErrAppendFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
