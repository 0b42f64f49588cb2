package dto

import (
	"time"

	"github.com/mercaflow/intake-api/internal/models"
)

// CreateQueueItemRequest registers an expected shipment on the queue.
type CreateQueueItemRequest struct {
	ProductID       string          `json:"product_id" validate:"required"`
	VendorID        string          `json:"vendor_id" validate:"required"`
	ExpectedArrival time.Time       `json:"expected_arrival" validate:"required"`
	Priority        models.Priority `json:"priority" validate:"required"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
	TrackingNumber  string          `json:"tracking_number"`
	Carrier         string          `json:"carrier"`
}

// UpdateQueueItemRequest patches fields not owned by the state machine.
// Nil pointers leave the field untouched.
type UpdateQueueItemRequest struct {
	TrackingNumber    *string             `json:"tracking_number,omitempty"`
	Carrier           *string             `json:"carrier,omitempty"`
	ExpectedArrival   *time.Time          `json:"expected_arrival,omitempty"`
	ActualArrival     *time.Time          `json:"actual_arrival,omitempty"`
	Priority          *models.Priority    `json:"priority,omitempty"`
	IsDelayed         *bool               `json:"is_delayed,omitempty"`
	DelayReason       *models.DelayReason `json:"delay_reason,omitempty"`
	VerificationNotes *string             `json:"verification_notes,omitempty"`
}

// AssignQueueItemRequest claims an item for an administrator.
type AssignQueueItemRequest struct {
	AssignedTo string `json:"assigned_to" validate:"required"`
}

// QueueItemQuery collects list filters parsed from the query string.
type QueueItemQuery struct {
	Status      []models.VerificationStatus
	Priority    models.Priority
	AssignedTo  string
	VendorID    string
	OverdueOnly bool
	DelayedOnly bool
	Page        int
	Limit       int
}

// QueueItemView is a queue item plus derived fields recomputed on every read.
type QueueItemView struct {
	models.QueueItem
	StatusLabel         string                    `json:"status_label"`
	PriorityLabel       string                    `json:"priority_label"`
	IsOverdue           bool                      `json:"is_overdue"`
	DaysInQueue         int                       `json:"days_in_queue"`
	ProcessingTimeHours *float64                  `json:"processing_time_hours,omitempty"`
	ProgressPercentage  float64                   `json:"progress_percentage"`
	CurrentStep         *models.StepName          `json:"current_step,omitempty"`
	Steps               []models.VerificationStep `json:"steps"`
}
