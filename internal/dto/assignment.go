package dto

// ManualAssignRequest targets an explicit zone-shelf-position slot.
type ManualAssignRequest struct {
	Zone     string `json:"zone" validate:"required"`
	Shelf    string `json:"shelf" validate:"required"`
	Position string `json:"position" validate:"required"`
}

// RegisterLocationRequest adds a slot to the topology registry.
type RegisterLocationRequest struct {
	Zone            string  `json:"zone" validate:"required"`
	Shelf           string  `json:"shelf" validate:"required"`
	Position        string  `json:"position" validate:"required"`
	Capacity        int     `json:"capacity" validate:"required,gt=0"`
	Category        string  `json:"category"`
	DistanceToEntry float64 `json:"distance_to_entry" validate:"gte=0"`
}
