package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
	"github.com/mercaflow/intake-api/pkg/storage"
)

// newTxDB provides a sqlx.DB whose transactions always succeed, for stubs
// that only need BeginTxx plumbing.
func newTxDB(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	return sqlx.NewDb(db, "sqlmock"), func() { db.Close() }
}

type workflowRepoStub struct {
	*queueRepoStub
	db *sqlx.DB
}

func (s *workflowRepoStub) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, opts)
}

type submissionsStub struct {
	subs map[string]*models.StepSubmission
}

func newSubmissionsStub() *submissionsStub {
	return &submissionsStub{subs: make(map[string]*models.StepSubmission)}
}

func (s *submissionsStub) key(queueItemID string, step models.StepName, key string) string {
	return queueItemID + "|" + string(step) + "|" + key
}

func (s *submissionsStub) Find(ctx context.Context, queueItemID string, step models.StepName, key string) (*models.StepSubmission, error) {
	sub, ok := s.subs[s.key(queueItemID, step, key)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sub, nil
}

func (s *submissionsStub) Create(ctx context.Context, exec sqlx.ExtContext, sub *models.StepSubmission) error {
	s.subs[s.key(sub.QueueItemID, sub.StepName, sub.Key)] = sub
	return nil
}

type notifierStub struct {
	events []string
}

func (n *notifierStub) Dispatch(jobType string, payload interface{}) {
	n.events = append(n.events, jobType)
}

// itemAtStep seeds a queue item whose workflow has advanced to the given step.
func itemAtStep(t *testing.T, repo *queueRepoStub, step models.StepName) *models.QueueItem {
	t.Helper()
	now := time.Now().UTC()
	item := &models.QueueItem{
		ID:              "item-1",
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ProductName:     "Widget",
		Category:        "electronics",
		ExpectedArrival: now.Add(time.Hour),
		Deadline:        now.Add(72 * time.Hour),
		CreatedAt:       now,
		Priority:        models.PriorityNormal,
		Version:         1,
	}
	steps := models.NewStepSequence()
	for i := range steps {
		steps[i].IsCurrent = false
		if steps[i].Name == step {
			steps[i].IsCurrent = true
			item.Status = step.StatusFor()
			break
		}
		completedAt := now
		steps[i].IsCompleted = true
		steps[i].CompletedAt = &completedAt
	}
	if step == models.StepInitialInspection {
		item.Status = models.StatusPending
	}
	require.NoError(t, item.SetSteps(steps))
	require.NoError(t, repo.Create(context.Background(), item))
	return item
}

func newVerificationFixture(t *testing.T) (*VerificationService, *queueRepoStub, *submissionsStub, *notifierStub, func()) {
	t.Helper()
	db, cleanup := newTxDB(t)
	queue := newQueueRepoStub()
	repo := &workflowRepoStub{queueRepoStub: queue, db: db}
	subs := newSubmissionsStub()
	notify := &notifierStub{}
	cfg := intakeConfig()
	cfg.MaxStepFailures = 2
	svc := NewVerificationService(repo, subs, &auditStub{}, nil, notify, cfg, nil)
	return svc, queue, subs, notify, cleanup
}

func TestVerificationServiceStepPassAdvances(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepInitialInspection)

	status, err := svc.ExecuteStep(context.Background(), "item-1", models.StepInitialInspection, dto.ExecuteStepRequest{
		SubmissionKey: "sub-1",
		Passed:        true,
		Notes:         "all good",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, status.Status)
	require.NotNil(t, status.CurrentStep)
	require.Equal(t, models.StepDocumentationCheck, *status.CurrentStep)
	require.Equal(t, 1, status.VerificationAttempts)
	require.InDelta(t, 20.0, status.ProgressPercentage, 1e-9)

	stored, err := queue.GetByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.NotNil(t, stored.FirstStepStartedAt)
}

func TestVerificationServiceStepFailureStaysCurrent(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepInitialInspection)

	status, err := svc.ExecuteStep(context.Background(), "item-1", models.StepInitialInspection, dto.ExecuteStepRequest{
		SubmissionKey: "sub-1",
		Passed:        false,
		Notes:         "damaged packaging",
		Issues:        []string{"crushed box"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, status.Status)
	require.NotNil(t, status.CurrentStep)
	require.Equal(t, models.StepInitialInspection, *status.CurrentStep)
	require.Equal(t, 1, status.VerificationAttempts)
	require.InDelta(t, 0.0, status.ProgressPercentage, 1e-9)
}

func TestVerificationServiceIdempotentReplay(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepInitialInspection)

	req := dto.ExecuteStepRequest{SubmissionKey: "sub-1", Passed: true, Notes: "ok"}
	first, err := svc.ExecuteStep(context.Background(), "item-1", models.StepInitialInspection, req, nil)
	require.NoError(t, err)

	replay, err := svc.ExecuteStep(context.Background(), "item-1", models.StepInitialInspection, req, nil)
	require.NoError(t, err)
	require.Equal(t, first.VerificationAttempts, replay.VerificationAttempts)
	require.Equal(t, first.Status, replay.Status)

	stored, err := queue.GetByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.Equal(t, 1, stored.VerificationAttempts)
}

func TestVerificationServiceWrongStepRejected(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepInitialInspection)

	_, err := svc.ExecuteStep(context.Background(), "item-1", models.StepDocumentationCheck, dto.ExecuteStepRequest{
		SubmissionKey: "sub-1",
		Passed:        true,
		Notes:         "skipping ahead",
	}, nil)
	require.True(t, appErrors.HasCode(err, appErrors.ErrInvalidStep))
}

func TestVerificationServiceEscalationFlag(t *testing.T) {
	svc, queue, _, notify, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepInitialInspection)

	for i, key := range []string{"sub-1", "sub-2"} {
		_, err := svc.ExecuteStep(context.Background(), "item-1", models.StepInitialInspection, dto.ExecuteStepRequest{
			SubmissionKey: key,
			Passed:        false,
			Notes:         "still failing",
		}, nil)
		require.NoError(t, err, "attempt %d", i+1)
	}

	stored, err := queue.GetByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.True(t, stored.EscalationFlagged)
	require.Contains(t, notify.events, NotifyEscalation)
}

func TestVerificationServiceQualityCheck(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepQualityAssessment)

	status, err := svc.QualityCheck(context.Background(), "item-1", dto.QualityCheckRequest{
		SubmissionKey: "sub-1",
		Checklist: models.QualityChecklist{
			Items: []models.QualityChecklistItem{
				{Name: "packaging intact", Passed: true},
				{Name: "label legible", Passed: true},
			},
			Dimensions: models.QualityDimensions{LengthCM: 20, WidthCM: 10, HeightCM: 5, WeightKG: 1.5},
			Score:      92,
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, status.Status)
	require.NotNil(t, status.CurrentStep)
	require.Equal(t, models.StepLocationAssignment, *status.CurrentStep)

	stored, err := queue.GetByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.NotNil(t, stored.QualityScore)
	require.Equal(t, 92, *stored.QualityScore)
}

func TestVerificationServiceQualityCheckFailureCollectsIssues(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepQualityAssessment)

	status, err := svc.QualityCheck(context.Background(), "item-1", dto.QualityCheckRequest{
		SubmissionKey: "sub-1",
		Checklist: models.QualityChecklist{
			Items: []models.QualityChecklistItem{
				{Name: "packaging intact", Passed: false},
				{Name: "label legible", Passed: true},
			},
			Score: 40,
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusQualityCheck, status.Status)
	require.Equal(t, models.StepQualityAssessment, *status.CurrentStep)

	stored, err := queue.GetByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.Contains(t, string(stored.QualityIssues), "packaging intact")
}

func TestVerificationServiceHoldResume(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepDocumentationCheck)

	held, err := svc.Hold(context.Background(), "item-1", dto.HoldRequest{Notes: "awaiting vendor docs"}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusOnHold, held.Status)

	_, err = svc.ExecuteStep(context.Background(), "item-1", models.StepDocumentationCheck, dto.ExecuteStepRequest{
		SubmissionKey: "sub-1",
		Passed:        true,
		Notes:         "docs ok",
	}, nil)
	require.Error(t, err)

	resumed, err := svc.Resume(context.Background(), "item-1", nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, resumed.Status)
}

func TestVerificationServiceRejectAndTerminalGuard(t *testing.T) {
	svc, queue, _, notify, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepDocumentationCheck)

	status, err := svc.Reject(context.Background(), "item-1", dto.RejectRequest{
		Reason: models.DelayQualityIssues,
		Notes:  "counterfeit suspicion",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, status.Status)
	require.Nil(t, status.CurrentStep)
	require.Contains(t, notify.events, NotifyRejection)

	// Terminal items accept no further transitions.
	_, err = svc.Reject(context.Background(), "item-1", dto.RejectRequest{
		Reason: models.DelayOther,
		Notes:  "again",
	}, nil)
	require.True(t, appErrors.HasCode(err, appErrors.ErrTerminalState))

	_, err = svc.Hold(context.Background(), "item-1", dto.HoldRequest{}, nil)
	require.True(t, appErrors.HasCode(err, appErrors.ErrTerminalState))
}

func TestVerificationServiceCompletePreservesStrategy(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	item := itemAtStep(t, queue, models.StepFinalApproval)

	location := "A-01-03"
	strategy := models.StrategyManual
	item.AssignedLocation = &location
	item.AssignmentStrategy = &strategy
	require.NoError(t, queue.UpdateVersioned(context.Background(), nil, item))

	resp, err := svc.Complete(context.Background(), "item-1", dto.CompleteRequest{SubmissionKey: "sub-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, resp.Workflow.Status)
	require.NotEmpty(t, resp.TrackingCode)
	require.Empty(t, resp.SlipPDF)

	stored, err := queue.GetByID(context.Background(), "item-1")
	require.NoError(t, err)
	require.Equal(t, models.StrategyManual, *stored.AssignmentStrategy)
	require.NotNil(t, stored.CompletedAt)
}

func TestVerificationServiceCompleteWithSlip(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	item := itemAtStep(t, queue, models.StepFinalApproval)

	location := "B-02-01"
	strategy := models.StrategyAutomatic
	item.AssignedLocation = &location
	item.AssignmentStrategy = &strategy
	require.NoError(t, queue.UpdateVersioned(context.Background(), nil, item))

	resp, err := svc.Complete(context.Background(), "item-1", dto.CompleteRequest{
		SubmissionKey: "sub-1",
		WithSlip:      true,
	}, &models.JWTClaims{UserID: "admin-1", FullName: "Dana Ops"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SlipPDF)
	require.Equal(t, "%PDF", string(resp.SlipPDF[:4]))
}

func TestVerificationServiceSlipArchiveRoundTrip(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()

	archive, err := storage.NewSlipArchive(t.TempDir())
	require.NoError(t, err)
	svc.WithSlipArchive(archive, storage.NewDownloadTokenSigner("secret", time.Hour))

	item := itemAtStep(t, queue, models.StepFinalApproval)
	location := "B-02-01"
	item.AssignedLocation = &location
	require.NoError(t, queue.UpdateVersioned(context.Background(), nil, item))

	resp, err := svc.Complete(context.Background(), "item-1", dto.CompleteRequest{
		SubmissionKey: "sub-1",
		WithSlip:      true,
	}, &models.JWTClaims{UserID: "admin-1", FullName: "Dana Ops"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SlipToken)

	raw, filename, err := svc.OpenSlip(context.Background(), "item-1", resp.SlipToken)
	require.NoError(t, err)
	require.Equal(t, "putaway-"+resp.TrackingCode+".pdf", filename)
	require.Equal(t, "%PDF", string(raw[:4]))

	_, _, err = svc.OpenSlip(context.Background(), "item-2", resp.SlipToken)
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestVerificationServiceCompleteRequiresLocation(t *testing.T) {
	svc, queue, _, _, cleanup := newVerificationFixture(t)
	defer cleanup()
	itemAtStep(t, queue, models.StepFinalApproval)

	_, err := svc.Complete(context.Background(), "item-1", dto.CompleteRequest{SubmissionKey: "sub-1"}, nil)
	require.Error(t, err)
}
