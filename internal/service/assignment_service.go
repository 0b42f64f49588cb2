package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	"github.com/mercaflow/intake-api/pkg/config"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
)

type locationStore interface {
	Create(ctx context.Context, loc *models.WarehouseLocation) error
	GetByCode(ctx context.Context, zone, shelf, position string) (*models.WarehouseLocation, error)
	List(ctx context.Context) ([]models.WarehouseLocation, error)
	ListAvailable(ctx context.Context) ([]models.WarehouseLocation, error)
	IncrementOccupancy(ctx context.Context, exec sqlx.ExtContext, locationID string, weightKG float64) error
	ZoneLoads(ctx context.Context) ([]models.ZoneLoad, error)
	AvailabilitySummary(ctx context.Context) (*models.AvailabilitySummary, error)
}

// candidate pairs a location with its computed score for ranking.
type candidate struct {
	location models.WarehouseLocation
	score    float64
}

// AssignmentService scores warehouse slots and commits assignments. Both
// assignment modes advance the location_assignment step and bump the item to
// final_approval inside one transaction with the occupancy increment.
type AssignmentService struct {
	locations locationStore
	queue     verificationStore
	audit     auditLogger
	cache     cacheStore
	cfg       config.WarehouseConfig
	cacheTTL  time.Duration
	metrics   *MetricsService
	logger    *zap.Logger
	validate  *validator.Validate
}

// NewAssignmentService constructs the service.
func NewAssignmentService(locations locationStore, queue verificationStore, audit auditLogger, cache cacheStore, cfg config.WarehouseConfig, cacheTTL time.Duration, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		locations: locations,
		queue:     queue,
		audit:     audit,
		cache:     cache,
		cfg:       cfg,
		cacheTTL:  cacheTTL,
		logger:    logger,
		validate:  validator.New(),
	}
}

// WithMetrics enables assignment counters.
func (s *AssignmentService) WithMetrics(metrics *MetricsService) *AssignmentService {
	s.metrics = metrics
	return s
}

// AutoAssign picks the best-scoring slot and commits it. Losing the occupancy
// race triggers a bounded rescore against fresh state before giving up with
// NO_CAPACITY.
func (s *AssignmentService) AutoAssign(ctx context.Context, queueID string, actor *models.JWTClaims) (*models.AssignmentResult, error) {
	retries := s.cfg.AssignRetries
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; attempt <= retries; attempt++ {
		item, err := s.loadAssignable(ctx, queueID)
		if err != nil {
			return nil, err
		}

		candidates, err := s.rankCandidates(ctx, item)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, appErrors.ErrNoCapacity
		}

		best := candidates[0]
		result, err := s.commitAssignment(ctx, item, best.location, models.StrategyAutomatic, best.score, actor)
		if err != nil {
			if errors.Is(err, appErrors.ErrCapacityExceeded) || appErrors.HasCode(err, appErrors.ErrStaleStep) {
				s.logger.Debug("assignment race lost, rescoring",
					zap.String("queue_item_id", queueID),
					zap.String("location", best.location.Code()),
					zap.Int("attempt", attempt+1))
				continue
			}
			return nil, err
		}
		return result, nil
	}
	return nil, appErrors.ErrNoCapacity
}

// ManualAssign targets an explicit slot. Unknown slots are INVALID_LOCATION
// and full slots CAPACITY_EXCEEDED; there is no silent fallback.
func (s *AssignmentService) ManualAssign(ctx context.Context, queueID string, req dto.ManualAssignRequest, actor *models.JWTClaims) (*models.AssignmentResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual assignment payload")
	}

	item, err := s.loadAssignable(ctx, queueID)
	if err != nil {
		return nil, err
	}

	loc, err := s.locations.GetByCode(ctx, req.Zone, req.Shelf, req.Position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidLocation
		}
		return nil, err
	}
	if !loc.HasCapacity() {
		return nil, appErrors.ErrCapacityExceeded
	}

	return s.commitAssignment(ctx, item, *loc, models.StrategyManual, 0, actor)
}

// SuggestLocations returns the top candidates for manual-mode assistance.
// Read-only; nothing is reserved.
func (s *AssignmentService) SuggestLocations(ctx context.Context, queueID string, limit int) ([]models.LocationSuggestion, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	item, err := s.loadAssignable(ctx, queueID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.rankCandidates(ctx, item)
	if err != nil {
		return nil, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	suggestions := make([]models.LocationSuggestion, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, models.LocationSuggestion{
			Location:        c.location,
			Code:            c.location.Code(),
			Score:           c.score,
			UtilizationRate: c.location.UtilizationRate(),
			Recommendation:  recommendationFor(c.score),
		})
	}
	return suggestions, nil
}

// AvailabilitySummary reports warehouse-wide capacity, cached briefly.
func (s *AssignmentService) AvailabilitySummary(ctx context.Context) (*models.AvailabilitySummary, error) {
	if s.cache != nil {
		var cached models.AvailabilitySummary
		if err := s.cache.Get(ctx, availabilityCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	summary, err := s.locations.AvailabilitySummary(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, availabilityCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache availability summary", zap.Error(err))
		}
	}
	return summary, nil
}

// RegisterLocation adds a slot to the semi-static topology registry.
func (s *AssignmentService) RegisterLocation(ctx context.Context, req dto.RegisterLocationRequest, actor *models.JWTClaims) (*models.WarehouseLocation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location payload")
	}

	if _, err := s.locations.GetByCode(ctx, req.Zone, req.Shelf, req.Position); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "location already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	loc := &models.WarehouseLocation{
		Zone:            req.Zone,
		Shelf:           req.Shelf,
		Position:        req.Position,
		Capacity:        req.Capacity,
		Category:        req.Category,
		DistanceToEntry: req.DistanceToEntry,
	}
	if err := s.locations.Create(ctx, loc); err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx)
	return loc, nil
}

// ListLocations returns the full topology.
func (s *AssignmentService) ListLocations(ctx context.Context) ([]models.WarehouseLocation, error) {
	return s.locations.List(ctx)
}

// rankCandidates scores every slot with remaining capacity and sorts the
// result deterministically: score desc, utilization asc, code asc.
func (s *AssignmentService) rankCandidates(ctx context.Context, item *models.QueueItem) ([]candidate, error) {
	available, err := s.locations.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, nil
	}

	loads, err := s.locations.ZoneLoads(ctx)
	if err != nil {
		return nil, err
	}
	zoneLoads := make(map[string]models.ZoneLoad, len(loads))
	var maxZoneWeight, maxStockAge float64
	for _, load := range loads {
		zoneLoads[load.Zone] = load
		if load.WeightKG > maxZoneWeight {
			maxZoneWeight = load.WeightKG
		}
		if load.AvgStockAgeDays > maxStockAge {
			maxStockAge = load.AvgStockAgeDays
		}
	}
	var maxDistance float64
	for _, loc := range available {
		if loc.DistanceToEntry > maxDistance {
			maxDistance = loc.DistanceToEntry
		}
	}

	candidates := make([]candidate, 0, len(available))
	for _, loc := range available {
		if !loc.HasCapacity() {
			continue
		}
		score := s.score(item, loc, zoneLoads[loc.Zone], maxDistance, maxZoneWeight, maxStockAge)
		candidates = append(candidates, candidate{location: loc, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		ui, uj := candidates[i].location.UtilizationRate(), candidates[j].location.UtilizationRate()
		if ui != uj {
			return ui < uj
		}
		return candidates[i].location.Code() < candidates[j].location.Code()
	})
	return candidates, nil
}

// score combines the five weighted factors. Every term is normalized to
// [0, 1] so config weights translate directly into relative influence.
func (s *AssignmentService) score(item *models.QueueItem, loc models.WarehouseLocation, load models.ZoneLoad, maxDistance, maxZoneWeight, maxStockAge float64) float64 {
	free := loc.Capacity - loc.CurrentOccupancy

	// Tightest sufficient fit wins: a slot with lots of spare room is wasted
	// on a single unit.
	sizeFit := 1.0
	if loc.Capacity > 1 {
		sizeFit = 1 - float64(free-1)/float64(loc.Capacity-1)
	}

	proximity := 1.0
	if maxDistance > 0 {
		proximity = 1 - loc.DistanceToEntry/maxDistance
	}

	affinity := 0.0
	switch {
	case loc.Category == item.Category:
		affinity = 1.0
	case loc.Category == "":
		affinity = 0.5
	}

	weightBalance := 1.0
	if maxZoneWeight > 0 {
		weightBalance = 1 - load.WeightKG/maxZoneWeight
	}

	// Fast movers favor young zones near the entry so stock keeps rotating;
	// slow movers are indifferent.
	rotation := 0.5
	if item.FastMoving && maxStockAge > 0 {
		rotation = 1 - load.AvgStockAgeDays/maxStockAge
	}

	return s.cfg.SizeFitWeight*sizeFit +
		s.cfg.ProximityWeight*proximity +
		s.cfg.AffinityWeight*affinity +
		s.cfg.WeightBalanceWeight*weightBalance +
		s.cfg.RotationWeight*rotation
}

// commitAssignment performs the occupancy CAS, step completion and status
// advance in one transaction so capacity and workflow state never diverge.
func (s *AssignmentService) commitAssignment(ctx context.Context, item *models.QueueItem, loc models.WarehouseLocation, strategy models.AssignmentStrategy, score float64, actor *models.JWTClaims) (*models.AssignmentResult, error) {
	steps, err := item.DecodeSteps()
	if err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	current := currentStepIndex(steps)
	if current < 0 || steps[current].Name != models.StepLocationAssignment {
		return nil, appErrors.ErrInvalidStep
	}

	now := time.Now().UTC()
	code := loc.Code()
	result := models.StepResult{Passed: true, Notes: "assigned to " + code}
	steps[current].IsCompleted = true
	steps[current].IsCurrent = false
	steps[current].Result = &result
	steps[current].CompletedAt = &now
	if current+1 < len(steps) {
		steps[current+1].IsCurrent = true
		item.Status = steps[current+1].Name.StatusFor()
	}
	item.VerificationAttempts++
	item.AssignedLocation = &code
	item.AssignmentStrategy = &strategy
	if err := item.SetSteps(steps); err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	tx, err := s.queue.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.locations.IncrementOccupancy(ctx, tx, loc.ID, item.UnitWeight); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCapacityExceeded
		}
		return nil, err
	}
	if err := s.queue.UpdateVersioned(ctx, tx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStaleStep
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignment: %w", err)
	}

	s.emitAudit(ctx, actor, models.AuditActionLocationAssign, item.ID, mustJSON(map[string]interface{}{
		"location": code,
		"strategy": strategy,
		"score":    score,
	}))
	s.metrics.ObserveAssignment(string(strategy))
	s.invalidateAvailability(ctx)

	return &models.AssignmentResult{
		QueueItemID:      item.ID,
		AssignedLocation: code,
		Strategy:         strategy,
		Score:            score,
		NewStatus:        item.Status,
	}, nil
}

func (s *AssignmentService) loadAssignable(ctx context.Context, queueID string) (*models.QueueItem, error) {
	item, err := s.queue.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, appErrors.ErrTerminalState
	}
	steps, err := item.DecodeSteps()
	if err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	current := currentStepIndex(steps)
	if current < 0 || steps[current].Name != models.StepLocationAssignment {
		return nil, appErrors.Clone(appErrors.ErrInvalidStep, "item is not awaiting location assignment")
	}
	return item, nil
}

func (s *AssignmentService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "queue_item",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "assignment-service",
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AssignmentService) invalidateAvailability(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, pattern := range []string{availabilityCacheKey + "*", statsCacheKey + "*"} {
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("failed to invalidate cache", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

func recommendationFor(score float64) string {
	switch {
	case score >= 0.75:
		return "Excellent fit"
	case score >= 0.5:
		return "Good fit"
	default:
		return "Acceptable"
	}
}
