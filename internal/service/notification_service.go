package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mercaflow/intake-api/internal/models"
	"github.com/mercaflow/intake-api/pkg/jobs"
)

// Notification job types dispatched to the background queue.
const (
	NotifyRejection  = "vendor.rejection"
	NotifyDelay      = "shipment.delay"
	NotifySLABreach  = "sla.breach"
	NotifyEscalation = "verification.escalation"
)

// RejectionNotice informs a vendor that their shipment was rejected.
type RejectionNotice struct {
	QueueItemID string             `json:"queue_item_id"`
	ProductID   string             `json:"product_id"`
	VendorID    string             `json:"vendor_id"`
	Reason      models.DelayReason `json:"reason"`
	Notes       string             `json:"notes"`
	RejectedAt  time.Time          `json:"rejected_at"`
}

// SLANotice flags an item whose deadline or expected arrival was breached.
type SLANotice struct {
	QueueItemID string          `json:"queue_item_id"`
	VendorID    string          `json:"vendor_id"`
	Priority    models.Priority `json:"priority"`
	Deadline    time.Time       `json:"deadline"`
	DetectedAt  time.Time       `json:"detected_at"`
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
	Depth() int
}

// NotificationService fans out workflow events to vendors and supervisors.
// Delivery is fire and forget; a failed enqueue never fails the transition
// that produced the event.
type NotificationService struct {
	queue   jobEnqueuer
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(queue jobEnqueuer, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger, enabled: enabled}
}

// Dispatch enqueues one notification event.
func (s *NotificationService) Dispatch(jobType string, payload interface{}) {
	if !s.enabled || s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("type", jobType),
			zap.Int("queue_depth", s.queue.Depth()),
			zap.Error(err))
	}
}

// NotificationHandler processes queued notification jobs. The transport to
// vendors lives outside this service; here we log the delivery intent so the
// dispatcher pipeline is observable end to end.
func NotificationHandler(logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		logger.Info("notification dispatched",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Duration("queue_wait", time.Since(job.Enqueued)),
			zap.Any("payload", job.Payload))
		return nil
	}
}
