package models

// AssignmentStrategy distinguishes how a location was chosen.
type AssignmentStrategy string

const (
	StrategyAutomatic AssignmentStrategy = "automatic"
	StrategyManual    AssignmentStrategy = "manual"
)

// AssignmentResult is returned by both assignment modes. It is transient;
// the durable effects live on the queue item and the location counter.
type AssignmentResult struct {
	QueueItemID      string             `json:"queue_item_id"`
	AssignedLocation string             `json:"assigned_location"`
	Strategy         AssignmentStrategy `json:"assignment_strategy"`
	Score            float64            `json:"score,omitempty"`
	NewStatus        VerificationStatus `json:"new_status"`
}

// LocationSuggestion is one scored candidate returned by the read-only
// suggestion endpoint used for manual-mode assistance.
type LocationSuggestion struct {
	Location        WarehouseLocation `json:"location"`
	Code            string            `json:"code"`
	Score           float64           `json:"score"`
	UtilizationRate float64           `json:"utilization_rate"`
	Recommendation  string            `json:"recommendation"`
}
