package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// StepName identifies one unit of the verification workflow.
type StepName string

const (
	StepInitialInspection  StepName = "initial_inspection"
	StepDocumentationCheck StepName = "documentation_check"
	StepQualityAssessment  StepName = "quality_assessment"
	StepLocationAssignment StepName = "location_assignment"
	StepFinalApproval      StepName = "final_approval"
)

// StepOrder is the canonical execution sequence.
var StepOrder = []StepName{
	StepInitialInspection,
	StepDocumentationCheck,
	StepQualityAssessment,
	StepLocationAssignment,
	StepFinalApproval,
}

// Valid reports whether the step name is part of the canonical sequence.
func (s StepName) Valid() bool {
	for _, name := range StepOrder {
		if name == s {
			return true
		}
	}
	return false
}

// StatusFor maps a step to the workflow status an item carries while the step
// is current.
func (s StepName) StatusFor() VerificationStatus {
	switch s {
	case StepInitialInspection, StepDocumentationCheck:
		return StatusInProgress
	case StepQualityAssessment:
		return StatusQualityCheck
	case StepLocationAssignment, StepFinalApproval:
		return StatusApproved
	}
	return StatusInProgress
}

// StepResult records the outcome of one step execution.
type StepResult struct {
	Passed bool     `json:"passed"`
	Notes  string   `json:"notes"`
	Issues []string `json:"issues,omitempty"`
}

// VerificationStep is a value object embedded in the queue item record.
// Exactly one step has IsCurrent=true while the item is non-terminal.
type VerificationStep struct {
	Name          StepName    `json:"step_name"`
	Order         int         `json:"order"`
	IsCurrent     bool        `json:"is_current"`
	IsCompleted   bool        `json:"is_completed"`
	Result        *StepResult `json:"result,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	FailureCount  int         `json:"failure_count,omitempty"`
	SubmissionKey string      `json:"submission_key,omitempty"`
}

// NewStepSequence builds the fresh step document for a created item.
func NewStepSequence() []VerificationStep {
	steps := make([]VerificationStep, len(StepOrder))
	for i, name := range StepOrder {
		steps[i] = VerificationStep{Name: name, Order: i + 1, IsCurrent: i == 0}
	}
	return steps
}

// QualityDimensions carries the measured dimensions from the quality checklist.
type QualityDimensions struct {
	LengthCM float64 `json:"length_cm"`
	WidthCM  float64 `json:"width_cm"`
	HeightCM float64 `json:"height_cm"`
	WeightKG float64 `json:"weight_kg"`
}

// QualityChecklistItem is one inspected criterion.
type QualityChecklistItem struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

// QualityChecklist is the richer payload accepted by the quality_assessment
// step instead of the generic notes/issues form.
type QualityChecklist struct {
	Items      []QualityChecklistItem `json:"items"`
	PhotoRefs  []string               `json:"photo_refs,omitempty"`
	Dimensions QualityDimensions      `json:"dimensions"`
	Score      int                    `json:"score"`
}

// WorkflowStatus is returned by every step execution.
type WorkflowStatus struct {
	QueueItemID          string             `json:"queue_item_id"`
	Status               VerificationStatus `json:"verification_status"`
	StatusLabel          string             `json:"status_label"`
	CurrentStep          *StepName          `json:"current_step,omitempty"`
	ProgressPercentage   float64            `json:"progress_percentage"`
	VerificationAttempts int                `json:"verification_attempts"`
	EscalationFlagged    bool               `json:"escalation_flagged"`
	Steps                []VerificationStep `json:"steps"`
}

// StepSubmission is the durable idempotency record for a step execution.
// Unique constraint: (queue_item_id, step_name, submission_key).
type StepSubmission struct {
	ID          string         `db:"id" json:"id"`
	QueueItemID string         `db:"queue_item_id" json:"queue_item_id"`
	StepName    StepName       `db:"step_name" json:"step_name"`
	Key         string         `db:"submission_key" json:"submission_key"`
	Result      types.JSONText `db:"result" json:"result"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
