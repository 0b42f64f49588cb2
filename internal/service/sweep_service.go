package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mercaflow/intake-api/internal/models"
)

type sweepStore interface {
	ListArrivalOverdue(ctx context.Context, now time.Time) ([]models.QueueItem, error)
	ListDeadlineBreached(ctx context.Context, now time.Time) ([]models.QueueItem, error)
	UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, item *models.QueueItem) error
}

// SweepService periodically flags late shipments and emits SLA-breach
// notifications. Correctness never depends on it: is_overdue is derived on
// read, the sweeper only materializes is_delayed and fires alerts.
type SweepService struct {
	repo     sweepStore
	notify   notifier
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewSweepService constructs the sweeper.
func NewSweepService(repo sweepStore, notify notifier, interval time.Duration, logger *zap.Logger) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SweepService{
		repo:     repo,
		notify:   notify,
		interval: interval,
		logger:   logger,
		notified: make(map[string]struct{}),
	}
}

// Run blocks sweeping on the configured interval until ctx is cancelled.
func (s *SweepService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exported so tests and operators can trigger it.
func (s *SweepService) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	s.flagArrivalDelays(ctx, now)
	s.alertDeadlineBreaches(ctx, now)
}

func (s *SweepService) flagArrivalDelays(ctx context.Context, now time.Time) {
	items, err := s.repo.ListArrivalOverdue(ctx, now)
	if err != nil {
		s.logger.Warn("sweep: list arrival overdue failed", zap.Error(err))
		return
	}

	reason := models.DelayTransport
	for i := range items {
		item := items[i]
		item.IsDelayed = true
		item.DelayReason = &reason
		if err := s.repo.UpdateVersioned(ctx, nil, &item); err != nil {
			// A concurrent writer won; the next pass will pick the item up again.
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			s.logger.Warn("sweep: flag delay failed", zap.String("queue_item_id", item.ID), zap.Error(err))
			continue
		}
		if s.notify != nil {
			s.notify.Dispatch(NotifyDelay, SLANotice{
				QueueItemID: item.ID,
				VendorID:    item.VendorID,
				Priority:    item.Priority,
				Deadline:    item.Deadline,
				DetectedAt:  now,
			})
		}
	}
}

func (s *SweepService) alertDeadlineBreaches(ctx context.Context, now time.Time) {
	items, err := s.repo.ListDeadlineBreached(ctx, now)
	if err != nil {
		s.logger.Warn("sweep: list deadline breached failed", zap.Error(err))
		return
	}

	for _, item := range items {
		if s.alreadyNotified(item.ID) {
			continue
		}
		if s.notify != nil {
			s.notify.Dispatch(NotifySLABreach, SLANotice{
				QueueItemID: item.ID,
				VendorID:    item.VendorID,
				Priority:    item.Priority,
				Deadline:    item.Deadline,
				DetectedAt:  now,
			})
		}
		s.markNotified(item.ID)
	}
}

func (s *SweepService) alreadyNotified(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notified[id]
	return ok
}

func (s *SweepService) markNotified(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified[id] = struct{}{}
}
