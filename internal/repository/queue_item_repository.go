package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mercaflow/intake-api/internal/models"
)

const queueItemColumns = `id, product_id, vendor_id, product_name, category, unit_volume, unit_weight, fast_moving,
       expected_arrival, actual_arrival, deadline, created_at, updated_at,
       status, held_from, priority, assigned_to, assigned_at,
       tracking_number, carrier, is_delayed, delay_reason,
       verification_notes, quality_score, quality_issues, verification_attempts,
       steps, version, first_step_started_at, completed_at,
       assigned_location, assignment_strategy, tracking_code, reject_reason, reject_notes, escalation_flagged`

// QueueItemRepository persists verification queue items.
type QueueItemRepository struct {
	db *sqlx.DB
}

// NewQueueItemRepository constructs the repository.
func NewQueueItemRepository(db *sqlx.DB) *QueueItemRepository {
	return &QueueItemRepository{db: db}
}

// Create inserts a new queue item row.
func (r *QueueItemRepository) Create(ctx context.Context, item *models.QueueItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	if item.Version == 0 {
		item.Version = 1
	}
	const query = `INSERT INTO queue_items
	(id, product_id, vendor_id, product_name, category, unit_volume, unit_weight, fast_moving,
	 expected_arrival, actual_arrival, deadline, created_at, updated_at,
	 status, held_from, priority, assigned_to, assigned_at,
	 tracking_number, carrier, is_delayed, delay_reason,
	 verification_notes, quality_score, quality_issues, verification_attempts,
	 steps, version, first_step_started_at, completed_at,
	 assigned_location, assignment_strategy, tracking_code, reject_reason, reject_notes, escalation_flagged)
	VALUES (:id, :product_id, :vendor_id, :product_name, :category, :unit_volume, :unit_weight, :fast_moving,
	 :expected_arrival, :actual_arrival, :deadline, :created_at, :updated_at,
	 :status, :held_from, :priority, :assigned_to, :assigned_at,
	 :tracking_number, :carrier, :is_delayed, :delay_reason,
	 :verification_notes, :quality_score, :quality_issues, :verification_attempts,
	 :steps, :version, :first_step_started_at, :completed_at,
	 :assigned_location, :assignment_strategy, :tracking_code, :reject_reason, :reject_notes, :escalation_flagged)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create queue item: %w", err)
	}
	return nil
}

// GetByID fetches a queue item by identifier.
func (r *QueueItemRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_items WHERE id = $1`, queueItemColumns)
	var item models.QueueItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns queue items matching the filter, most urgent deadline first.
func (r *QueueItemRepository) List(ctx context.Context, filter models.QueueItemFilter) ([]models.QueueItem, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM queue_items`, queueItemColumns))

	conditions, args := buildQueueConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY deadline ASC, created_at ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var items []models.QueueItem
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return items, nil
}

// Count returns the total matching the filter for pagination metadata.
func (r *QueueItemRepository) Count(ctx context.Context, filter models.QueueItemFilter) (int, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT COUNT(*) FROM queue_items")
	conditions, args := buildQueueConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	var total int
	if err := r.db.GetContext(ctx, &total, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count queue items: %w", err)
	}
	return total, nil
}

func buildQueueConditions(filter models.QueueItemFilter) ([]string, []interface{}) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		conditions = append(conditions, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if filter.VendorID != "" {
		args = append(args, filter.VendorID)
		conditions = append(conditions, fmt.Sprintf("vendor_id = $%d", len(args)))
	}
	if filter.OverdueOnly {
		conditions = append(conditions, "deadline < NOW() AND status NOT IN ('completed','rejected')")
	}
	if filter.DelayedOnly {
		conditions = append(conditions, "is_delayed = TRUE")
	}
	return conditions, args
}

// UpdateVersioned persists the full mutable record guarded by the optimistic
// version column. A concurrent writer wins the race; the loser observes
// sql.ErrNoRows and must refetch.
func (r *QueueItemRepository) UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, item *models.QueueItem) error {
	if exec == nil {
		exec = r.db
	}
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE queue_items SET
	 expected_arrival = :expected_arrival, actual_arrival = :actual_arrival, deadline = :deadline,
	 updated_at = :updated_at, status = :status, held_from = :held_from, priority = :priority,
	 assigned_to = :assigned_to, assigned_at = :assigned_at,
	 tracking_number = :tracking_number, carrier = :carrier, is_delayed = :is_delayed, delay_reason = :delay_reason,
	 verification_notes = :verification_notes, quality_score = :quality_score, quality_issues = :quality_issues,
	 verification_attempts = :verification_attempts, steps = :steps, version = version + 1,
	 first_step_started_at = :first_step_started_at, completed_at = :completed_at,
	 assigned_location = :assigned_location, assignment_strategy = :assignment_strategy,
	 tracking_code = :tracking_code, reject_reason = :reject_reason, reject_notes = :reject_notes,
	 escalation_flagged = :escalation_flagged
	WHERE id = :id AND version = :version`
	result, err := sqlx.NamedExecContext(ctx, exec, query, item)
	if err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check queue item update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	item.Version++
	return nil
}

// Stats aggregates the queue in a single pass. queue_efficiency is the share
// of completed items that finished on or before their deadline.
func (r *QueueItemRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	const query = `SELECT
	 COUNT(*) AS total_items,
	 COUNT(*) FILTER (WHERE status = 'pending') AS pending,
	 COUNT(*) FILTER (WHERE status = 'assigned') AS assigned,
	 COUNT(*) FILTER (WHERE status IN ('in_progress','quality_check','approved','on_hold')) AS in_progress,
	 COUNT(*) FILTER (WHERE status = 'completed') AS completed,
	 COUNT(*) FILTER (WHERE deadline < NOW() AND status NOT IN ('completed','rejected')) AS overdue,
	 COUNT(*) FILTER (WHERE is_delayed) AS delayed,
	 COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - first_step_started_at)) / 3600.0)
	          FILTER (WHERE completed_at IS NOT NULL AND first_step_started_at IS NOT NULL), 0) AS average_processing_time,
	 COALESCE(
	   COUNT(*) FILTER (WHERE status = 'completed' AND completed_at <= deadline)::float /
	   NULLIF(COUNT(*) FILTER (WHERE status = 'completed'), 0), 0) AS queue_efficiency
	FROM queue_items`
	var stats models.QueueStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}

// ListArrivalOverdue returns non-terminal items past their expected arrival
// that have not arrived and are not yet flagged as delayed.
func (r *QueueItemRepository) ListArrivalOverdue(ctx context.Context, now time.Time) ([]models.QueueItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_items
	WHERE expected_arrival < $1 AND actual_arrival IS NULL AND is_delayed = FALSE
	  AND status NOT IN ('completed','rejected')`, queueItemColumns)
	var items []models.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, now); err != nil {
		return nil, fmt.Errorf("list arrival overdue: %w", err)
	}
	return items, nil
}

// ListDeadlineBreached returns non-terminal items past their deadline.
func (r *QueueItemRepository) ListDeadlineBreached(ctx context.Context, now time.Time) ([]models.QueueItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM queue_items
	WHERE deadline < $1 AND status NOT IN ('completed','rejected')`, queueItemColumns)
	var items []models.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, now); err != nil {
		return nil, fmt.Errorf("list deadline breached: %w", err)
	}
	return items, nil
}

// BeginTxx exposes transactions to services coordinating multi-row commits.
func (r *QueueItemRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}
