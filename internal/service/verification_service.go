package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	"github.com/mercaflow/intake-api/pkg/config"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
	"github.com/mercaflow/intake-api/pkg/export"
)

type verificationStore interface {
	GetByID(ctx context.Context, id string) (*models.QueueItem, error)
	UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, item *models.QueueItem) error
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type submissionStore interface {
	Find(ctx context.Context, queueItemID string, step models.StepName, key string) (*models.StepSubmission, error)
	Create(ctx context.Context, exec sqlx.ExtContext, sub *models.StepSubmission) error
}

type notifier interface {
	Dispatch(jobType string, payload interface{})
}

type slipVault interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type slipTokenSigner interface {
	Generate(itemID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (itemID, relPath string, expiresAt time.Time, err error)
}

// VerificationService drives the step state machine: execution with
// idempotent submissions, quality checklists, hold/resume cycling, rejection
// and final completion with the putaway slip artifact.
type VerificationService struct {
	repo        verificationStore
	submissions submissionStore
	audit       auditLogger
	cache       cacheStore
	notify      notifier
	pdf         *export.PDFExporter
	slips       slipVault
	signer      slipTokenSigner
	metrics     *MetricsService
	cfg         config.IntakeConfig
	logger      *zap.Logger
	validate    *validator.Validate
}

// NewVerificationService constructs the service.
func NewVerificationService(repo verificationStore, submissions submissionStore, audit auditLogger, cache cacheStore, notify notifier, cfg config.IntakeConfig, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationService{
		repo:        repo,
		submissions: submissions,
		audit:       audit,
		cache:       cache,
		notify:      notify,
		pdf:         export.NewPDFExporter(),
		cfg:         cfg,
		logger:      logger,
		validate:    validator.New(),
	}
}

// WithSlipArchive enables durable slip storage and signed download tokens.
// Without it, completion still returns the inline PDF.
func (s *VerificationService) WithSlipArchive(vault slipVault, signer slipTokenSigner) *VerificationService {
	s.slips = vault
	s.signer = signer
	return s
}

// WithMetrics enables step execution counters.
func (s *VerificationService) WithMetrics(metrics *MetricsService) *VerificationService {
	s.metrics = metrics
	return s
}

// ExecuteStep submits the outcome of the item's current step. Only the two
// inspection steps accept the generic payload; quality_assessment goes
// through QualityCheck, location_assignment through the assignment engine
// and final_approval through Complete.
func (s *VerificationService) ExecuteStep(ctx context.Context, queueID string, step models.StepName, req dto.ExecuteStepRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid step payload")
	}
	if !step.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown verification step")
	}
	switch step {
	case models.StepQualityAssessment:
		return nil, appErrors.Clone(appErrors.ErrValidation, "quality_assessment requires the checklist endpoint")
	case models.StepLocationAssignment:
		return nil, appErrors.Clone(appErrors.ErrValidation, "location_assignment completes through the assignment engine")
	case models.StepFinalApproval:
		return nil, appErrors.Clone(appErrors.ErrValidation, "final_approval completes through the complete endpoint")
	}
	if strings.TrimSpace(req.Notes) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "notes are required for manual steps")
	}

	result := models.StepResult{Passed: req.Passed, Notes: req.Notes, Issues: req.Issues}
	return s.execute(ctx, queueID, step, req.SubmissionKey, result, actor, nil)
}

// QualityCheck submits the typed checklist for the quality_assessment step.
// The checklist score lands on the item; failed criteria on quality_issues.
func (s *VerificationService) QualityCheck(ctx context.Context, queueID string, req dto.QualityCheckRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quality check payload")
	}
	if len(req.Checklist.Items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "checklist requires at least one item")
	}

	passed := true
	issues := make([]string, 0)
	for _, item := range req.Checklist.Items {
		if !item.Passed {
			passed = false
			issues = append(issues, item.Name)
		}
	}

	result := models.StepResult{Passed: passed, Notes: req.Notes, Issues: issues}
	checklist := req.Checklist
	return s.execute(ctx, queueID, models.StepQualityAssessment, req.SubmissionKey, result, actor, &checklist)
}

// execute is the shared transition core. It replays idempotent submissions,
// guards current-step and terminal preconditions, and commits the step
// mutation, the submission record and the version bump in one transaction.
func (s *VerificationService) execute(ctx context.Context, queueID string, step models.StepName, key string, result models.StepResult, actor *models.JWTClaims, checklist *models.QualityChecklist) (*models.WorkflowStatus, error) {
	if replay, err := s.replaySubmission(ctx, queueID, step, key); err != nil {
		return nil, err
	} else if replay != nil {
		return replay, nil
	}

	item, err := s.repo.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, appErrors.ErrTerminalState
	}
	if item.Status == models.StatusOnHold {
		return nil, appErrors.Clone(appErrors.ErrConflict, "item is on hold, resume before executing steps")
	}

	steps, err := item.DecodeSteps()
	if err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	current := currentStepIndex(steps)
	if current < 0 || steps[current].Name != step {
		return nil, appErrors.ErrInvalidStep
	}

	now := time.Now().UTC()
	if item.FirstStepStartedAt == nil {
		item.FirstStepStartedAt = &now
	}
	item.VerificationAttempts++

	if result.Passed {
		steps[current].IsCompleted = true
		steps[current].IsCurrent = false
		steps[current].Result = &result
		steps[current].CompletedAt = &now
		steps[current].SubmissionKey = key
		if current+1 < len(steps) {
			steps[current+1].IsCurrent = true
			item.Status = steps[current+1].Name.StatusFor()
		}
	} else {
		// A failed step does not advance or change status; the item stays on
		// the current step awaiting re-execution or explicit rejection.
		steps[current].Result = &result
		steps[current].FailureCount++
		if s.cfg.MaxStepFailures > 0 && steps[current].FailureCount >= s.cfg.MaxStepFailures && !item.EscalationFlagged {
			item.EscalationFlagged = true
			s.emitAudit(ctx, actor, models.AuditActionEscalation, item.ID, nil)
			if s.notify != nil {
				s.notify.Dispatch(NotifyEscalation, models.WorkflowStatus{QueueItemID: item.ID, Status: item.Status})
			}
		}
	}

	if checklist != nil {
		score := checklist.Score
		item.QualityScore = &score
		if raw, err := json.Marshal(result.Issues); err == nil {
			item.QualityIssues = types.JSONText(raw)
		}
	}

	if err := item.SetSteps(steps); err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	status := buildWorkflowStatus(item, steps)
	if err := s.commit(ctx, item, step, key, status); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionStepExecute, item.ID, mustJSON(result))
	s.metrics.ObserveStepExecution(string(step), result.Passed)
	s.invalidateStats(ctx)
	return status, nil
}

// Hold pauses an active item. The pre-hold status is restored on resume.
func (s *VerificationService) Hold(ctx context.Context, queueID string, req dto.HoldRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	item, err := s.loadActive(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusInProgress && item.Status != models.StatusQualityCheck {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only in_progress or quality_check items can be held")
	}

	held := item.Status
	item.HeldFrom = &held
	item.Status = models.StatusOnHold
	if req.Notes != "" {
		item.VerificationNotes = req.Notes
	}

	if err := s.update(ctx, item); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionHold, item.ID, nil)
	s.invalidateStats(ctx)
	return workflowFromItem(item)
}

// Resume restores the status the item held before going on hold.
func (s *VerificationService) Resume(ctx context.Context, queueID string, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	item, err := s.loadActive(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusOnHold || item.HeldFrom == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "item is not on hold")
	}

	item.Status = *item.HeldFrom
	item.HeldFrom = nil

	if err := s.update(ctx, item); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, models.AuditActionResume, item.ID, nil)
	s.invalidateStats(ctx)
	return workflowFromItem(item)
}

// Reject terminates the workflow from any non-terminal state. Irreversible;
// the record is retained for vendor accountability and a notification job is
// dispatched fire-and-forget.
func (s *VerificationService) Reject(ctx context.Context, queueID string, req dto.RejectRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reject payload")
	}
	if !req.Reason.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown rejection reason")
	}

	item, err := s.loadActive(ctx, queueID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reason := string(req.Reason)
	item.Status = models.StatusRejected
	item.RejectReason = &reason
	item.RejectNotes = &req.Notes
	item.CompletedAt = &now
	item.HeldFrom = nil
	clearCurrentStep(item)

	if err := s.update(ctx, item); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionReject, item.ID, mustJSON(req))
	s.invalidateStats(ctx)
	if s.notify != nil {
		s.notify.Dispatch(NotifyRejection, RejectionNotice{
			QueueItemID: item.ID,
			ProductID:   item.ProductID,
			VendorID:    item.VendorID,
			Reason:      req.Reason,
			Notes:       req.Notes,
			RejectedAt:  now,
		})
	}
	return workflowFromItem(item)
}

// Complete finishes final_approval. A tracking code is generated and, when
// requested, a putaway slip PDF carrying it is rendered for warehouse staff.
func (s *VerificationService) Complete(ctx context.Context, queueID string, req dto.CompleteRequest, actor *models.JWTClaims) (*dto.CompleteResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid complete payload")
	}

	if replay, err := s.replaySubmission(ctx, queueID, models.StepFinalApproval, req.SubmissionKey); err != nil {
		return nil, err
	} else if replay != nil {
		resp := &dto.CompleteResponse{Workflow: *replay}
		if item, err := s.repo.GetByID(ctx, queueID); err == nil && item.TrackingCode != nil {
			resp.TrackingCode = *item.TrackingCode
			if req.WithSlip {
				if pdf, err := s.renderSlip(item, actor); err == nil {
					resp.SlipPDF = pdf
					resp.SlipToken = s.archiveSlip(item.ID, resp.TrackingCode, pdf)
				}
			}
		}
		return resp, nil
	}

	item, err := s.loadActive(ctx, queueID)
	if err != nil {
		return nil, err
	}
	steps, err := item.DecodeSteps()
	if err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	current := currentStepIndex(steps)
	if current < 0 || steps[current].Name != models.StepFinalApproval {
		return nil, appErrors.ErrInvalidStep
	}
	if item.AssignedLocation == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "item has no assigned location")
	}

	now := time.Now().UTC()
	code := newTrackingCode()
	result := models.StepResult{Passed: true, Notes: req.Notes}
	steps[current].IsCompleted = true
	steps[current].IsCurrent = false
	steps[current].Result = &result
	steps[current].CompletedAt = &now
	steps[current].SubmissionKey = req.SubmissionKey

	item.VerificationAttempts++
	item.Status = models.StatusCompleted
	item.CompletedAt = &now
	item.TrackingCode = &code
	if err := item.SetSteps(steps); err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	status := buildWorkflowStatus(item, steps)
	if err := s.commit(ctx, item, models.StepFinalApproval, req.SubmissionKey, status); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionComplete, item.ID, mustJSON(status))
	s.metrics.ObserveStepExecution(string(models.StepFinalApproval), true)
	s.invalidateStats(ctx)

	resp := &dto.CompleteResponse{Workflow: *status, TrackingCode: code}
	if req.WithSlip {
		pdf, err := s.renderSlip(item, actor)
		if err != nil {
			s.logger.Warn("failed to render putaway slip", zap.String("queue_item_id", item.ID), zap.Error(err))
		} else {
			resp.SlipPDF = pdf
			resp.SlipToken = s.archiveSlip(item.ID, code, pdf)
		}
	}
	return resp, nil
}

// OpenSlip serves a previously archived putaway slip for a signed token.
func (s *VerificationService) OpenSlip(ctx context.Context, queueID, token string) ([]byte, string, error) {
	if s.slips == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "slip archive is not configured")
	}
	itemID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid slip token")
	}
	if itemID != queueID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "token does not match the queue item")
	}
	file, err := s.slips.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "slip not found")
	}
	defer file.Close() //nolint:errcheck
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read slip: %w", err)
	}
	return raw, filepath.Base(relPath), nil
}

// Workflow returns the current state machine view of one item.
func (s *VerificationService) Workflow(ctx context.Context, queueID string) (*models.WorkflowStatus, error) {
	item, err := s.repo.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, err
	}
	return workflowFromItem(item)
}

func (s *VerificationService) replaySubmission(ctx context.Context, queueID string, step models.StepName, key string) (*models.WorkflowStatus, error) {
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission_key is required")
	}
	sub, err := s.submissions.Find(ctx, queueID, step, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var status models.WorkflowStatus
	if err := json.Unmarshal(sub.Result, &status); err != nil {
		return nil, fmt.Errorf("decode stored submission: %w", err)
	}
	return &status, nil
}

func (s *VerificationService) commit(ctx context.Context, item *models.QueueItem, step models.StepName, key string, status *models.WorkflowStatus) error {
	tx, err := s.repo.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.repo.UpdateVersioned(ctx, tx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStaleStep
		}
		return err
	}
	sub := &models.StepSubmission{
		QueueItemID: item.ID,
		StepName:    step,
		Key:         key,
		Result:      types.JSONText(mustJSON(status)),
	}
	if err := s.submissions.Create(ctx, tx, sub); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *VerificationService) loadActive(ctx context.Context, queueID string) (*models.QueueItem, error) {
	item, err := s.repo.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, appErrors.ErrTerminalState
	}
	return item, nil
}

func (s *VerificationService) update(ctx context.Context, item *models.QueueItem) error {
	if err := s.repo.UpdateVersioned(ctx, nil, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStaleStep
		}
		return err
	}
	return nil
}

func (s *VerificationService) renderSlip(item *models.QueueItem, actor *models.JWTClaims) ([]byte, error) {
	completedBy := ""
	if actor != nil {
		completedBy = actor.FullName
	}
	location := ""
	if item.AssignedLocation != nil {
		location = *item.AssignedLocation
	}
	code := ""
	if item.TrackingCode != nil {
		code = *item.TrackingCode
	}
	completedAt := ""
	if item.CompletedAt != nil {
		completedAt = item.CompletedAt.Format(time.RFC3339)
	}
	return s.pdf.RenderPutawaySlip(export.PutawaySlip{
		TrackingCode: code,
		QueueItemID:  item.ID,
		ProductName:  item.ProductName,
		VendorID:     item.VendorID,
		Location:     location,
		CompletedBy:  completedBy,
		CompletedAt:  completedAt,
	})
}

// archiveSlip persists the rendered slip and returns a signed download token.
// Archival is best effort; the inline PDF already carries the artifact.
func (s *VerificationService) archiveSlip(itemID, code string, pdf []byte) string {
	if s.slips == nil || s.signer == nil {
		return ""
	}
	name := slipFilename(code)
	if _, err := s.slips.Save(name, pdf); err != nil {
		s.logger.Warn("failed to archive putaway slip", zap.String("queue_item_id", itemID), zap.Error(err))
		return ""
	}
	token, _, err := s.signer.Generate(itemID, name)
	if err != nil {
		s.logger.Warn("failed to sign slip download token", zap.String("queue_item_id", itemID), zap.Error(err))
		return ""
	}
	return token
}

func slipFilename(code string) string {
	return "putaway-" + code + ".pdf"
}

func (s *VerificationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "queue_item",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "verification-service",
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *VerificationService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statsCacheKey+"*"); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

func currentStepIndex(steps []models.VerificationStep) int {
	for i := range steps {
		if steps[i].IsCurrent {
			return i
		}
	}
	return -1
}

func clearCurrentStep(item *models.QueueItem) {
	steps, err := item.DecodeSteps()
	if err != nil {
		return
	}
	for i := range steps {
		steps[i].IsCurrent = false
	}
	_ = item.SetSteps(steps)
}

func buildWorkflowStatus(item *models.QueueItem, steps []models.VerificationStep) *models.WorkflowStatus {
	status := &models.WorkflowStatus{
		QueueItemID:          item.ID,
		Status:               item.Status,
		StatusLabel:          item.Status.Label(),
		VerificationAttempts: item.VerificationAttempts,
		EscalationFlagged:    item.EscalationFlagged,
		Steps:                steps,
	}
	completed := 0
	for i := range steps {
		if steps[i].IsCompleted {
			completed++
		}
		if steps[i].IsCurrent && !item.Status.IsTerminal() {
			name := steps[i].Name
			status.CurrentStep = &name
		}
	}
	if len(steps) > 0 {
		status.ProgressPercentage = float64(completed) / float64(len(steps)) * 100
	}
	return status
}

func workflowFromItem(item *models.QueueItem) (*models.WorkflowStatus, error) {
	steps, err := item.DecodeSteps()
	if err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return buildWorkflowStatus(item, steps), nil
}

func newTrackingCode() string {
	return "PA-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
