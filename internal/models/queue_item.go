package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// VerificationStatus captures workflow states for queue items.
type VerificationStatus string

const (
	StatusPending      VerificationStatus = "pending"
	StatusAssigned     VerificationStatus = "assigned"
	StatusInProgress   VerificationStatus = "in_progress"
	StatusQualityCheck VerificationStatus = "quality_check"
	StatusApproved     VerificationStatus = "approved"
	StatusCompleted    VerificationStatus = "completed"
	StatusRejected     VerificationStatus = "rejected"
	StatusOnHold       VerificationStatus = "on_hold"
)

// IsTerminal reports whether the status allows no further transitions.
func (s VerificationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Label returns the human-readable status label.
func (s VerificationStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

var statusLabels = map[VerificationStatus]string{
	StatusPending:      "Pending",
	StatusAssigned:     "Assigned",
	StatusInProgress:   "In Progress",
	StatusQualityCheck: "Quality Check",
	StatusApproved:     "Approved",
	StatusCompleted:    "Completed",
	StatusRejected:     "Rejected",
	StatusOnHold:       "On Hold",
}

// Priority orders queue items and drives SLA deadlines.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityCritical  Priority = "critical"
	PriorityExpedited Priority = "expedited"
)

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical, PriorityExpedited:
		return true
	}
	return false
}

// Label returns the human-readable priority label.
func (p Priority) Label() string {
	if label, ok := priorityLabels[p]; ok {
		return label
	}
	return string(p)
}

var priorityLabels = map[Priority]string{
	PriorityLow:       "Low",
	PriorityNormal:    "Normal",
	PriorityHigh:      "High",
	PriorityCritical:  "Critical",
	PriorityExpedited: "Expedited",
}

// DelayReason classifies why a shipment is late.
type DelayReason string

const (
	DelayTransport     DelayReason = "transport"
	DelayCustoms       DelayReason = "customs"
	DelayDocumentation DelayReason = "documentation"
	DelayVendor        DelayReason = "vendor_delay"
	DelayQualityIssues DelayReason = "quality_issues"
	DelayCapacity      DelayReason = "capacity"
	DelayOther         DelayReason = "other"
)

// Valid reports whether the delay reason is a known value.
func (d DelayReason) Valid() bool {
	switch d {
	case DelayTransport, DelayCustoms, DelayDocumentation, DelayVendor,
		DelayQualityIssues, DelayCapacity, DelayOther:
		return true
	}
	return false
}

// QueueItem is one shipment awaiting or undergoing verification. Step results
// are embedded as an ordered JSON document; terminal items are retained for audit.
type QueueItem struct {
	ID       string `db:"id" json:"id"`
	ProductID string `db:"product_id" json:"product_id"`
	VendorID  string `db:"vendor_id" json:"vendor_id"`

	// Product attributes snapshotted from the catalog at creation; the scoring
	// function reads these rather than calling out on every assignment.
	ProductName string  `db:"product_name" json:"product_name"`
	Category    string  `db:"category" json:"category"`
	UnitVolume  float64 `db:"unit_volume" json:"unit_volume"`
	UnitWeight  float64 `db:"unit_weight" json:"unit_weight"`
	FastMoving  bool    `db:"fast_moving" json:"fast_moving"`

	ExpectedArrival time.Time  `db:"expected_arrival" json:"expected_arrival"`
	ActualArrival   *time.Time `db:"actual_arrival" json:"actual_arrival,omitempty"`
	Deadline        time.Time  `db:"deadline" json:"deadline"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	Status     VerificationStatus  `db:"status" json:"verification_status"`
	HeldFrom   *VerificationStatus `db:"held_from" json:"held_from,omitempty"`
	Priority   Priority            `db:"priority" json:"priority"`
	AssignedTo *string             `db:"assigned_to" json:"assigned_to,omitempty"`
	AssignedAt *time.Time          `db:"assigned_at" json:"assigned_at,omitempty"`

	TrackingNumber string       `db:"tracking_number" json:"tracking_number"`
	Carrier        string       `db:"carrier" json:"carrier"`
	IsDelayed      bool         `db:"is_delayed" json:"is_delayed"`
	DelayReason    *DelayReason `db:"delay_reason" json:"delay_reason,omitempty"`

	VerificationNotes    string         `db:"verification_notes" json:"verification_notes"`
	QualityScore         *int           `db:"quality_score" json:"quality_score,omitempty"`
	QualityIssues        types.JSONText `db:"quality_issues" json:"quality_issues,omitempty"`
	VerificationAttempts int            `db:"verification_attempts" json:"verification_attempts"`

	Steps   types.JSONText `db:"steps" json:"-"`
	Version int            `db:"version" json:"version"`

	FirstStepStartedAt *time.Time `db:"first_step_started_at" json:"first_step_started_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	AssignedLocation   *string             `db:"assigned_location" json:"assigned_location,omitempty"`
	AssignmentStrategy *AssignmentStrategy `db:"assignment_strategy" json:"assignment_strategy,omitempty"`

	TrackingCode      *string `db:"tracking_code" json:"tracking_code,omitempty"`
	RejectReason      *string `db:"reject_reason" json:"reject_reason,omitempty"`
	RejectNotes       *string `db:"reject_notes" json:"reject_notes,omitempty"`
	EscalationFlagged bool    `db:"escalation_flagged" json:"escalation_flagged"`
}

// DecodeSteps unmarshals the embedded step document.
func (q *QueueItem) DecodeSteps() ([]VerificationStep, error) {
	if len(q.Steps) == 0 {
		return nil, nil
	}
	var steps []VerificationStep
	if err := json.Unmarshal(q.Steps, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// SetSteps marshals the step document back onto the record.
func (q *QueueItem) SetSteps(steps []VerificationStep) error {
	raw, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	q.Steps = types.JSONText(raw)
	return nil
}

// QueueItemFilter constrains listing queries. All set filters are ANDed.
type QueueItemFilter struct {
	Status      []VerificationStatus
	Priority    Priority
	AssignedTo  string
	VendorID    string
	OverdueOnly bool
	DelayedOnly bool
	Limit       int
	Offset      int
}

// QueueStats aggregates the current queue in a single pass.
type QueueStats struct {
	TotalItems            int     `db:"total_items" json:"total_items"`
	Pending               int     `db:"pending" json:"pending"`
	Assigned              int     `db:"assigned" json:"assigned"`
	InProgress            int     `db:"in_progress" json:"in_progress"`
	Completed             int     `db:"completed" json:"completed"`
	Overdue               int     `db:"overdue" json:"overdue"`
	Delayed               int     `db:"delayed" json:"delayed"`
	AverageProcessingTime float64 `db:"average_processing_time" json:"average_processing_time_hours"`
	QueueEfficiency       float64 `db:"queue_efficiency" json:"queue_efficiency"`
}
