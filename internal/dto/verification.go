package dto

import "github.com/mercaflow/intake-api/internal/models"

// ExecuteStepRequest submits the outcome of the item's current step.
// SubmissionKey makes retries of the same logical submission idempotent.
type ExecuteStepRequest struct {
	SubmissionKey string   `json:"submission_key" validate:"required"`
	Passed        bool     `json:"passed"`
	Notes         string   `json:"notes"`
	Issues        []string `json:"issues,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// QualityCheckRequest is the richer payload for the quality_assessment step.
type QualityCheckRequest struct {
	SubmissionKey string                  `json:"submission_key" validate:"required"`
	Checklist     models.QualityChecklist `json:"checklist" validate:"required"`
	Notes         string                  `json:"notes"`
}

// RejectRequest terminates the workflow early.
type RejectRequest struct {
	Reason models.DelayReason `json:"reason" validate:"required"`
	Notes  string             `json:"notes" validate:"required"`
}

// HoldRequest pauses an item; the current state is restored on resume.
type HoldRequest struct {
	Notes string `json:"notes"`
}

// CompleteRequest finishes final_approval. When WithSlip is set a putaway
// slip PDF carrying the generated tracking code is returned.
type CompleteRequest struct {
	SubmissionKey string `json:"submission_key" validate:"required"`
	WithSlip      bool   `json:"with_slip"`
	Notes         string `json:"notes"`
}

// CompleteResponse reports the terminal transition and optional artifact.
// SlipToken is a signed download token for the archived slip copy.
type CompleteResponse struct {
	Workflow     models.WorkflowStatus `json:"workflow"`
	TrackingCode string                `json:"tracking_code,omitempty"`
	SlipToken    string                `json:"slip_token,omitempty"`
	SlipPDF      []byte                `json:"-"`
}
