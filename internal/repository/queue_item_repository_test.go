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

func newQueueRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sampleQueueItem(t *testing.T) *models.QueueItem {
	t.Helper()
	item := &models.QueueItem{
		ID:              "item-1",
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ProductName:     "Widget",
		Category:        "electronics",
		UnitVolume:      0.02,
		UnitWeight:      1.5,
		ExpectedArrival: time.Now().Add(24 * time.Hour),
		Deadline:        time.Now().Add(72 * time.Hour),
		Status:          models.StatusPending,
		Priority:        models.PriorityHigh,
		Version:         1,
	}
	require.NoError(t, item.SetSteps(models.NewStepSequence()))
	return item
}

func TestQueueItemRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueItemRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_items")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	item := sampleQueueItem(t)
	item.ID = ""
	item.Status = ""
	item.Version = 0
	require.NoError(t, repo.Create(context.Background(), item))
	require.NotEmpty(t, item.ID)
	require.Equal(t, models.StatusPending, item.Status)
	require.Equal(t, 1, item.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueItemRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueItemRepository(db)
	rows := queueItemRows(sampleQueueItem(t))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, product_id, vendor_id")).
		WithArgs("pending", "assigned", "high", "vendor-1").
		WillReturnRows(rows)

	items, err := repo.List(context.Background(), models.QueueItemFilter{
		Status:   []models.VerificationStatus{models.StatusPending, models.StatusAssigned},
		Priority: models.PriorityHigh,
		VendorID: "vendor-1",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "item-1", items[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueItemRepositoryUpdateVersionedStale(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueItemRepository(db)
	item := sampleQueueItem(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queue_items SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateVersioned(context.Background(), nil, item))
	require.Equal(t, 2, item.Version)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE queue_items SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateVersioned(context.Background(), nil, item)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueItemRepositoryStats(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueItemRepository(db)
	rows := sqlmock.NewRows([]string{
		"total_items", "pending", "assigned", "in_progress", "completed",
		"overdue", "delayed", "average_processing_time", "queue_efficiency",
	}).AddRow(10, 3, 2, 2, 3, 1, 1, 18.5, 0.6667)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, stats.TotalItems)
	require.Equal(t, 3, stats.Completed)
	require.InDelta(t, 0.6667, stats.QueueEfficiency, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func queueItemRows(item *models.QueueItem) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "product_id", "vendor_id", "product_name", "category", "unit_volume", "unit_weight", "fast_moving",
		"expected_arrival", "actual_arrival", "deadline", "created_at", "updated_at",
		"status", "held_from", "priority", "assigned_to", "assigned_at",
		"tracking_number", "carrier", "is_delayed", "delay_reason",
		"verification_notes", "quality_score", "quality_issues", "verification_attempts",
		"steps", "version", "first_step_started_at", "completed_at",
		"assigned_location", "assignment_strategy", "tracking_code", "reject_reason", "reject_notes", "escalation_flagged",
	}).AddRow(
		item.ID, item.ProductID, item.VendorID, item.ProductName, item.Category, item.UnitVolume, item.UnitWeight, item.FastMoving,
		item.ExpectedArrival, nil, item.Deadline, time.Now(), time.Now(),
		item.Status, nil, item.Priority, nil, nil,
		item.TrackingNumber, item.Carrier, item.IsDelayed, nil,
		item.VerificationNotes, nil, []byte("[]"), item.VerificationAttempts,
		[]byte(item.Steps), item.Version, nil, nil,
		nil, nil, nil, nil, nil, item.EscalationFlagged,
	)
}
