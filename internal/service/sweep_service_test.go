package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mercaflow/intake-api/internal/models"
)

type sweepRepoStub struct {
	*queueRepoStub
}

func (s *sweepRepoStub) ListArrivalOverdue(ctx context.Context, now time.Time) ([]models.QueueItem, error) {
	result := make([]models.QueueItem, 0)
	for _, item := range s.items {
		if item.ExpectedArrival.Before(now) && item.ActualArrival == nil && !item.IsDelayed && !item.Status.IsTerminal() {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (s *sweepRepoStub) ListDeadlineBreached(ctx context.Context, now time.Time) ([]models.QueueItem, error) {
	result := make([]models.QueueItem, 0)
	for _, item := range s.items {
		if item.Deadline.Before(now) && !item.Status.IsTerminal() {
			result = append(result, *item)
		}
	}
	return result, nil
}

func TestSweepServiceFlagsArrivalDelays(t *testing.T) {
	queue := newQueueRepoStub()
	repo := &sweepRepoStub{queueRepoStub: queue}
	notify := &notifierStub{}
	svc := NewSweepService(repo, notify, time.Minute, nil)

	now := time.Now().UTC()
	late := &models.QueueItem{
		ID:              "late-1",
		VendorID:        "vendor-1",
		ExpectedArrival: now.Add(-2 * time.Hour),
		Deadline:        now.Add(24 * time.Hour),
		Status:          models.StatusPending,
		Priority:        models.PriorityNormal,
		Version:         1,
	}
	require.NoError(t, late.SetSteps(models.NewStepSequence()))
	require.NoError(t, queue.Create(context.Background(), late))

	svc.Sweep(context.Background())

	stored, err := queue.GetByID(context.Background(), "late-1")
	require.NoError(t, err)
	require.True(t, stored.IsDelayed)
	require.NotNil(t, stored.DelayReason)
	require.Equal(t, models.DelayTransport, *stored.DelayReason)
	require.Contains(t, notify.events, NotifyDelay)
}

func TestSweepServiceAlertsBreachOnce(t *testing.T) {
	queue := newQueueRepoStub()
	repo := &sweepRepoStub{queueRepoStub: queue}
	notify := &notifierStub{}
	svc := NewSweepService(repo, notify, time.Minute, nil)

	now := time.Now().UTC()
	arrival := now.Add(-time.Hour)
	breached := &models.QueueItem{
		ID:              "breach-1",
		VendorID:        "vendor-1",
		ExpectedArrival: now.Add(-3 * time.Hour),
		ActualArrival:   &arrival,
		Deadline:        now.Add(-time.Minute),
		Status:          models.StatusInProgress,
		Priority:        models.PriorityCritical,
		Version:         1,
	}
	require.NoError(t, breached.SetSteps(models.NewStepSequence()))
	require.NoError(t, queue.Create(context.Background(), breached))

	svc.Sweep(context.Background())
	svc.Sweep(context.Background())

	breaches := 0
	for _, event := range notify.events {
		if event == NotifySLABreach {
			breaches++
		}
	}
	require.Equal(t, 1, breaches)
}
