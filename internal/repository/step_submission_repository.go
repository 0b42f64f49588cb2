package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mercaflow/intake-api/internal/models"
)

// StepSubmissionRepository stores durable idempotency records for step
// executions, keyed (queue_item_id, step_name, submission_key).
type StepSubmissionRepository struct {
	db *sqlx.DB
}

// NewStepSubmissionRepository constructs the repository.
func NewStepSubmissionRepository(db *sqlx.DB) *StepSubmissionRepository {
	return &StepSubmissionRepository{db: db}
}

// Find returns the stored result of a previous submission, if any.
func (r *StepSubmissionRepository) Find(ctx context.Context, queueItemID string, step models.StepName, key string) (*models.StepSubmission, error) {
	const query = `SELECT id, queue_item_id, step_name, submission_key, result, created_at
	FROM step_submissions WHERE queue_item_id = $1 AND step_name = $2 AND submission_key = $3`
	var sub models.StepSubmission
	if err := r.db.GetContext(ctx, &sub, query, queueItemID, step, key); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create persists the submission result alongside the workflow transition so
// a retried request replays the same outcome.
func (r *StepSubmissionRepository) Create(ctx context.Context, exec sqlx.ExtContext, sub *models.StepSubmission) error {
	if exec == nil {
		exec = r.db
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO step_submissions
	(id, queue_item_id, step_name, submission_key, result, created_at)
	VALUES (:id, :queue_item_id, :step_name, :submission_key, :result, :created_at)
	ON CONFLICT (queue_item_id, step_name, submission_key) DO NOTHING`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, sub); err != nil {
		return fmt.Errorf("create step submission: %w", err)
	}
	return nil
}
