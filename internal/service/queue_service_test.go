package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	"github.com/mercaflow/intake-api/pkg/config"
)

type queueRepoStub struct {
	items map[string]*models.QueueItem
}

func newQueueRepoStub() *queueRepoStub {
	return &queueRepoStub{items: make(map[string]*models.QueueItem)}
}

func (s *queueRepoStub) Create(ctx context.Context, item *models.QueueItem) error {
	if item.ID == "" {
		item.ID = "item-" + time.Now().Format("150405.000000000")
	}
	if item.Version == 0 {
		item.Version = 1
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *queueRepoStub) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (s *queueRepoStub) List(ctx context.Context, filter models.QueueItemFilter) ([]models.QueueItem, error) {
	result := make([]models.QueueItem, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, *item)
	}
	return result, nil
}

func (s *queueRepoStub) Count(ctx context.Context, filter models.QueueItemFilter) (int, error) {
	return len(s.items), nil
}

func (s *queueRepoStub) UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, item *models.QueueItem) error {
	stored, ok := s.items[item.ID]
	if !ok || stored.Version != item.Version {
		return sql.ErrNoRows
	}
	item.Version++
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *queueRepoStub) Stats(ctx context.Context) (*models.QueueStats, error) {
	return &models.QueueStats{TotalItems: len(s.items)}, nil
}

type catalogStub struct {
	product    models.ProductInfo
	productErr error
	vendorErr  error
}

func (c *catalogStub) Product(ctx context.Context, productID string) (*models.ProductInfo, error) {
	if c.productErr != nil {
		return nil, c.productErr
	}
	p := c.product
	p.ID = productID
	return &p, nil
}

func (c *catalogStub) ValidateVendor(ctx context.Context, vendorID, productID string) error {
	return c.vendorErr
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func intakeConfig() config.IntakeConfig {
	return config.IntakeConfig{
		SLALowHours:       120,
		SLANormalHours:    72,
		SLAHighHours:      48,
		SLACriticalHours:  24,
		SLAExpeditedHours: 12,
		ArrivalGrace:      time.Hour,
	}
}

func testCatalog() *catalogStub {
	return &catalogStub{product: models.ProductInfo{
		Name:       "Widget",
		Category:   "electronics",
		LengthCM:   20,
		WidthCM:    10,
		HeightCM:   5,
		WeightKG:   1.5,
		FastMoving: true,
	}}
}

func TestQueueServiceCreateDerivesDeadlineByPriority(t *testing.T) {
	repo := newQueueRepoStub()
	audit := &auditStub{}
	svc := NewQueueService(repo, testCatalog(), audit, nil, intakeConfig(), time.Minute, nil)

	arrival := time.Now().Add(time.Hour)
	critical, err := svc.Create(context.Background(), dto.CreateQueueItemRequest{
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ExpectedArrival: arrival,
		Priority:        models.PriorityCritical,
	}, nil)
	require.NoError(t, err)

	low, err := svc.Create(context.Background(), dto.CreateQueueItemRequest{
		ProductID:       "prod-2",
		VendorID:        "vendor-1",
		ExpectedArrival: arrival,
		Priority:        models.PriorityLow,
	}, nil)
	require.NoError(t, err)

	require.True(t, critical.Deadline.Before(low.Deadline))
	require.Equal(t, models.StatusPending, critical.Status)
	require.Equal(t, "Widget", critical.ProductName)
	require.InDelta(t, 1000.0, critical.UnitVolume, 1e-9)
	require.Len(t, critical.Steps, 5)
	require.NotNil(t, critical.CurrentStep)
	require.Equal(t, models.StepInitialInspection, *critical.CurrentStep)
	require.Len(t, audit.logs, 2)
}

func TestQueueServiceCreateRejectsPastArrival(t *testing.T) {
	svc := NewQueueService(newQueueRepoStub(), testCatalog(), nil, nil, intakeConfig(), time.Minute, nil)

	_, err := svc.Create(context.Background(), dto.CreateQueueItemRequest{
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ExpectedArrival: time.Now().Add(-2 * time.Hour),
		Priority:        models.PriorityNormal,
	}, nil)
	require.Error(t, err)
}

func TestQueueServiceUpdateActualArrivalWriteOnce(t *testing.T) {
	repo := newQueueRepoStub()
	svc := NewQueueService(repo, testCatalog(), nil, nil, intakeConfig(), time.Minute, nil)

	created, err := svc.Create(context.Background(), dto.CreateQueueItemRequest{
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ExpectedArrival: time.Now().Add(time.Hour),
		Priority:        models.PriorityNormal,
	}, nil)
	require.NoError(t, err)

	arrival := time.Now()
	_, err = svc.UpdateFields(context.Background(), created.ID, dto.UpdateQueueItemRequest{ActualArrival: &arrival}, nil)
	require.NoError(t, err)

	later := arrival.Add(time.Hour)
	_, err = svc.UpdateFields(context.Background(), created.ID, dto.UpdateQueueItemRequest{ActualArrival: &later}, nil)
	require.Error(t, err)
}

func TestQueueServicePriorityChangeRecomputesDeadline(t *testing.T) {
	repo := newQueueRepoStub()
	svc := NewQueueService(repo, testCatalog(), nil, nil, intakeConfig(), time.Minute, nil)

	created, err := svc.Create(context.Background(), dto.CreateQueueItemRequest{
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ExpectedArrival: time.Now().Add(time.Hour),
		Priority:        models.PriorityLow,
	}, nil)
	require.NoError(t, err)

	expedited := models.PriorityExpedited
	updated, err := svc.UpdateFields(context.Background(), created.ID, dto.UpdateQueueItemRequest{Priority: &expedited}, nil)
	require.NoError(t, err)
	require.True(t, updated.Deadline.Before(created.Deadline))
	require.False(t, updated.Deadline.Before(updated.CreatedAt))
}

func TestQueueServiceAssignOnlyPending(t *testing.T) {
	repo := newQueueRepoStub()
	svc := NewQueueService(repo, testCatalog(), nil, nil, intakeConfig(), time.Minute, nil)

	created, err := svc.Create(context.Background(), dto.CreateQueueItemRequest{
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ExpectedArrival: time.Now().Add(time.Hour),
		Priority:        models.PriorityNormal,
	}, nil)
	require.NoError(t, err)

	assigned, err := svc.Assign(context.Background(), created.ID, dto.AssignQueueItemRequest{AssignedTo: "admin-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusAssigned, assigned.Status)
	require.NotNil(t, assigned.AssignedAt)

	_, err = svc.Assign(context.Background(), created.ID, dto.AssignQueueItemRequest{AssignedTo: "admin-2"}, nil)
	require.Error(t, err)
}

func TestQueueServiceDerivedFields(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-10 * time.Hour)
	completed := now.Add(-2 * time.Hour)
	item := models.QueueItem{
		ID:                 "item-1",
		CreatedAt:          now.Add(-72 * time.Hour),
		Deadline:           now.Add(-time.Hour),
		Status:             models.StatusCompleted,
		Priority:           models.PriorityHigh,
		FirstStepStartedAt: &started,
		CompletedAt:        &completed,
	}
	require.NoError(t, item.SetSteps(models.NewStepSequence()))

	view := newQueueItemView(item, now)
	require.False(t, view.IsOverdue) // terminal items are never overdue
	require.Equal(t, 3, view.DaysInQueue)
	require.NotNil(t, view.ProcessingTimeHours)
	require.InDelta(t, 8.0, *view.ProcessingTimeHours, 1e-9)
	require.Nil(t, view.CurrentStep)
}

func TestQueueServiceExportCSV(t *testing.T) {
	repo := newQueueRepoStub()
	svc := NewQueueService(repo, testCatalog(), nil, nil, intakeConfig(), time.Minute, nil)

	_, err := svc.Create(context.Background(), dto.CreateQueueItemRequest{
		ProductID:       "prod-1",
		VendorID:        "vendor-1",
		ExpectedArrival: time.Now().Add(time.Hour),
		Priority:        models.PriorityNormal,
	}, nil)
	require.NoError(t, err)

	raw, err := svc.ExportCSV(context.Background(), dto.QueueItemQuery{})
	require.NoError(t, err)
	require.Contains(t, string(raw), "Widget")
}
