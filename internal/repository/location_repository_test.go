package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/mercaflow/intake-api/internal/models"
)

func newLocationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLocationRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newLocationRepoMock(t)
	defer cleanup()

	repo := NewLocationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO warehouse_locations")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	loc := &models.WarehouseLocation{
		Zone:            "A",
		Shelf:           "01",
		Position:        "03",
		Capacity:        10,
		Category:        "electronics",
		DistanceToEntry: 12.5,
	}
	require.NoError(t, repo.Create(context.Background(), loc))
	require.NotEmpty(t, loc.ID)

	rows := sqlmock.NewRows([]string{
		"id", "zone", "shelf", "position", "capacity", "current_occupancy", "category",
		"distance_to_entry", "weight_load_kg", "avg_stock_age_days", "created_at", "updated_at",
	}).AddRow(loc.ID, "A", "01", "03", 10, 0, "electronics", 12.5, 0.0, 0.0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, zone, shelf, position")).
		WithArgs("A", "01", "03").
		WillReturnRows(rows)

	found, err := repo.GetByCode(context.Background(), "A", "01", "03")
	require.NoError(t, err)
	require.Equal(t, "A-01-03", found.Code())
	require.True(t, found.HasCapacity())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryIncrementOccupancyFull(t *testing.T) {
	db, mock, cleanup := newLocationRepoMock(t)
	defer cleanup()

	repo := NewLocationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE warehouse_locations")).
		WithArgs("loc-1", 2.5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IncrementOccupancy(context.Background(), nil, "loc-1", 2.5))

	// A racing assignment filled the slot first.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE warehouse_locations")).
		WithArgs("loc-1", 2.5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.IncrementOccupancy(context.Background(), nil, "loc-1", 2.5)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryAvailabilitySummary(t *testing.T) {
	db, mock, cleanup := newLocationRepoMock(t)
	defer cleanup()

	repo := NewLocationRepository(db)
	rows := sqlmock.NewRows([]string{"total_locations", "total_capacity", "total_available", "utilization_rate", "zones_count"}).
		AddRow(4, 40, 25, 0.375, 2)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	summary, err := repo.AvailabilitySummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, summary.TotalLocations)
	require.Equal(t, 25, summary.TotalAvailable)
	require.InDelta(t, 0.375, summary.UtilizationRate, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}
