package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	"github.com/mercaflow/intake-api/pkg/config"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
	"github.com/mercaflow/intake-api/pkg/export"
)

const (
	statsCacheKey        = "intake:stats"
	availabilityCacheKey = "intake:availability"
)

type queueStore interface {
	Create(ctx context.Context, item *models.QueueItem) error
	GetByID(ctx context.Context, id string) (*models.QueueItem, error)
	List(ctx context.Context, filter models.QueueItemFilter) ([]models.QueueItem, error)
	Count(ctx context.Context, filter models.QueueItemFilter) (int, error)
	UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, item *models.QueueItem) error
	Stats(ctx context.Context) (*models.QueueStats, error)
}

type catalogProvider interface {
	Product(ctx context.Context, productID string) (*models.ProductInfo, error)
	ValidateVendor(ctx context.Context, vendorID, productID string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// QueueService owns queue item lifecycle outside the verification state
// machine: registration, reads with derived fields, restricted updates,
// claiming, aggregate statistics and CSV export.
type QueueService struct {
	repo     queueStore
	catalog  catalogProvider
	audit    auditLogger
	cache    cacheStore
	cfg      config.IntakeConfig
	statsTTL time.Duration
	csv      *export.CSVExporter
	logger   *zap.Logger
	validate *validator.Validate
}

// NewQueueService constructs the service.
func NewQueueService(repo queueStore, catalog catalogProvider, audit auditLogger, cache cacheStore, cfg config.IntakeConfig, statsTTL time.Duration, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		repo:     repo,
		catalog:  catalog,
		audit:    audit,
		cache:    cache,
		cfg:      cfg,
		statsTTL: statsTTL,
		csv:      export.NewCSVExporter(),
		logger:   logger,
		validate: validator.New(),
	}
}

// Create registers an expected shipment. Product and vendor references are
// verified against the catalog and the product attributes are snapshotted
// onto the item so scoring never calls out again.
func (s *QueueService) Create(ctx context.Context, req dto.CreateQueueItemRequest, actor *models.JWTClaims) (*dto.QueueItemView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid queue item payload")
	}
	if !req.Priority.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority")
	}
	now := time.Now().UTC()
	if req.ExpectedArrival.Before(now.Add(-s.cfg.ArrivalGrace)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expected_arrival is in the past")
	}

	product, err := s.catalog.Product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.ValidateVendor(ctx, req.VendorID, req.ProductID); err != nil {
		return nil, err
	}

	item := &models.QueueItem{
		ProductID:       req.ProductID,
		VendorID:        req.VendorID,
		ProductName:     product.Name,
		Category:        product.Category,
		UnitVolume:      product.Volume(),
		UnitWeight:      product.WeightKG,
		FastMoving:      product.FastMoving,
		ExpectedArrival: req.ExpectedArrival.UTC(),
		Priority:        req.Priority,
		TrackingNumber:  req.TrackingNumber,
		Carrier:         req.Carrier,
		Status:          models.StatusPending,
		CreatedAt:       now,
	}
	if req.Deadline != nil {
		if req.Deadline.Before(now) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline must be in the future")
		}
		item.Deadline = req.Deadline.UTC()
	} else {
		item.Deadline = now.Add(s.slaDuration(req.Priority))
	}
	if err := item.SetSteps(models.NewStepSequence()); err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionQueueCreate, item.ID, nil)
	s.invalidateStats(ctx)

	view := newQueueItemView(*item, now)
	return &view, nil
}

// Get fetches one item with derived fields and step history.
func (s *QueueService) Get(ctx context.Context, id string) (*dto.QueueItemView, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, err
	}
	view := newQueueItemView(*item, time.Now().UTC())
	return &view, nil
}

// List returns the filtered queue ordered by deadline, plus pagination meta.
func (s *QueueService) List(ctx context.Context, query dto.QueueItemQuery) ([]dto.QueueItemView, *models.Pagination, error) {
	if query.Priority != "" && !query.Priority.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority filter")
	}
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	filter := models.QueueItemFilter{
		Status:      query.Status,
		Priority:    query.Priority,
		AssignedTo:  query.AssignedTo,
		VendorID:    query.VendorID,
		OverdueOnly: query.OverdueOnly,
		DelayedOnly: query.DelayedOnly,
		Limit:       limit,
		Offset:      (page - 1) * limit,
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	views := make([]dto.QueueItemView, 0, len(items))
	for _, item := range items {
		views = append(views, newQueueItemView(item, now))
	}
	return views, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}

// UpdateFields patches the restricted field set. State-machine fields are
// never writable here and actual_arrival is write-once.
func (s *QueueService) UpdateFields(ctx context.Context, id string, req dto.UpdateQueueItemRequest, actor *models.JWTClaims) (*dto.QueueItemView, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, appErrors.ErrTerminalState
	}

	if req.TrackingNumber != nil {
		item.TrackingNumber = *req.TrackingNumber
	}
	if req.Carrier != nil {
		item.Carrier = *req.Carrier
	}
	if req.ExpectedArrival != nil {
		if item.ActualArrival != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "expected_arrival cannot change after the shipment arrived")
		}
		item.ExpectedArrival = req.ExpectedArrival.UTC()
	}
	if req.ActualArrival != nil {
		if item.ActualArrival != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "actual_arrival is already recorded")
		}
		arrival := req.ActualArrival.UTC()
		item.ActualArrival = &arrival
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown priority")
		}
		if *req.Priority != item.Priority {
			item.Priority = *req.Priority
			item.Deadline = item.CreatedAt.Add(s.slaDuration(item.Priority))
		}
	}
	if req.IsDelayed != nil {
		if *req.IsDelayed {
			if req.DelayReason == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "delay_reason is required when flagging a delay")
			}
		} else {
			item.DelayReason = nil
		}
		item.IsDelayed = *req.IsDelayed
	}
	if req.DelayReason != nil {
		if !req.DelayReason.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown delay reason")
		}
		item.DelayReason = req.DelayReason
	}
	if req.VerificationNotes != nil {
		item.VerificationNotes = *req.VerificationNotes
	}

	if err := s.repo.UpdateVersioned(ctx, nil, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStaleStep
		}
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionQueueUpdate, item.ID, nil)
	s.invalidateStats(ctx)

	view := newQueueItemView(*item, time.Now().UTC())
	return &view, nil
}

// Assign claims a pending item for an administrator.
func (s *QueueService) Assign(ctx context.Context, id string, req dto.AssignQueueItemRequest, actor *models.JWTClaims) (*dto.QueueItemView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assign payload")
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, err
	}
	if item.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only pending items can be claimed")
	}

	now := time.Now().UTC()
	item.Status = models.StatusAssigned
	item.AssignedTo = &req.AssignedTo
	item.AssignedAt = &now

	if err := s.repo.UpdateVersioned(ctx, nil, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStaleStep
		}
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionQueueAssign, item.ID, nil)
	s.invalidateStats(ctx)

	view := newQueueItemView(*item, now)
	return &view, nil
}

// Stats returns the aggregate queue snapshot, served from cache when fresh.
func (s *QueueService) Stats(ctx context.Context) (*models.QueueStats, error) {
	if s.cache != nil {
		var cached models.QueueStats
		if err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.statsTTL); err != nil {
			s.logger.Warn("failed to cache queue stats", zap.Error(err))
		}
	}
	return stats, nil
}

// ExportCSV renders the filtered queue as a CSV document.
func (s *QueueService) ExportCSV(ctx context.Context, query dto.QueueItemQuery) ([]byte, error) {
	query.Limit = 200
	views, _, err := s.List(ctx, query)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Product", "Vendor", "Priority", "Status", "Expected Arrival", "Deadline", "Overdue", "Delayed", "Assigned Location"},
		Rows:    make([]map[string]string, 0, len(views)),
	}
	for _, view := range views {
		location := ""
		if view.AssignedLocation != nil {
			location = *view.AssignedLocation
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":                view.ID,
			"Product":           view.ProductName,
			"Vendor":            view.VendorID,
			"Priority":          view.PriorityLabel,
			"Status":            view.StatusLabel,
			"Expected Arrival":  view.ExpectedArrival.Format(time.RFC3339),
			"Deadline":          view.Deadline.Format(time.RFC3339),
			"Overdue":           strconv.FormatBool(view.IsOverdue),
			"Delayed":           strconv.FormatBool(view.IsDelayed),
			"Assigned Location": location,
		})
	}
	return s.csv.Render(dataset)
}

func (s *QueueService) slaDuration(priority models.Priority) time.Duration {
	hours := s.cfg.SLANormalHours
	switch priority {
	case models.PriorityLow:
		hours = s.cfg.SLALowHours
	case models.PriorityNormal:
		hours = s.cfg.SLANormalHours
	case models.PriorityHigh:
		hours = s.cfg.SLAHighHours
	case models.PriorityCritical:
		hours = s.cfg.SLACriticalHours
	case models.PriorityExpedited:
		hours = s.cfg.SLAExpeditedHours
	}
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

func (s *QueueService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "queue_item",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "queue-service",
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *QueueService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statsCacheKey+"*"); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

// newQueueItemView derives read-only presentation fields. Derived fields are
// recomputed on every read and never persisted.
func newQueueItemView(item models.QueueItem, now time.Time) dto.QueueItemView {
	view := dto.QueueItemView{
		QueueItem:     item,
		StatusLabel:   item.Status.Label(),
		PriorityLabel: item.Priority.Label(),
		IsOverdue:     now.After(item.Deadline) && !item.Status.IsTerminal(),
		DaysInQueue:   int(now.Sub(item.CreatedAt).Hours() / 24),
	}
	if item.CompletedAt != nil && item.FirstStepStartedAt != nil {
		hours := item.CompletedAt.Sub(*item.FirstStepStartedAt).Hours()
		view.ProcessingTimeHours = &hours
	}
	steps, err := item.DecodeSteps()
	if err != nil || len(steps) == 0 {
		return view
	}
	view.Steps = steps
	completed := 0
	for i := range steps {
		if steps[i].IsCompleted {
			completed++
		}
		if steps[i].IsCurrent && !item.Status.IsTerminal() {
			name := steps[i].Name
			view.CurrentStep = &name
		}
	}
	view.ProgressPercentage = float64(completed) / float64(len(steps)) * 100
	return view
}
