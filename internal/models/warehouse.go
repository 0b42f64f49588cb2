package models

import (
	"fmt"
	"time"
)

// WarehouseLocation is one physical zone-shelf-position slot with finite
// capacity. current_occupancy is mutated only by assignment commits.
type WarehouseLocation struct {
	ID               string    `db:"id" json:"id"`
	Zone             string    `db:"zone" json:"zone"`
	Shelf            string    `db:"shelf" json:"shelf"`
	Position         string    `db:"position" json:"position"`
	Capacity         int       `db:"capacity" json:"capacity"`
	CurrentOccupancy int       `db:"current_occupancy" json:"current_occupancy"`
	Category         string    `db:"category" json:"category"`
	DistanceToEntry  float64   `db:"distance_to_entry" json:"distance_to_entry"`
	WeightLoadKG     float64   `db:"weight_load_kg" json:"weight_load_kg"`
	AvgStockAgeDays  float64   `db:"avg_stock_age_days" json:"avg_stock_age_days"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Code returns the canonical "zone-shelf-position" identifier.
func (l WarehouseLocation) Code() string {
	return fmt.Sprintf("%s-%s-%s", l.Zone, l.Shelf, l.Position)
}

// UtilizationRate is current_occupancy / capacity.
func (l WarehouseLocation) UtilizationRate() float64 {
	if l.Capacity <= 0 {
		return 0
	}
	return float64(l.CurrentOccupancy) / float64(l.Capacity)
}

// HasCapacity reports whether the slot can take one more unit.
func (l WarehouseLocation) HasCapacity() bool {
	return l.CurrentOccupancy < l.Capacity
}

// ZoneLoad carries per-zone aggregates consumed by the scoring function.
type ZoneLoad struct {
	Zone            string  `db:"zone" json:"zone"`
	WeightKG        float64 `db:"weight_kg" json:"weight_kg"`
	AvgStockAgeDays float64 `db:"avg_stock_age_days" json:"avg_stock_age_days"`
	Utilization     float64 `db:"utilization" json:"utilization"`
}

// AvailabilitySummary aggregates the topology registry and current occupancy.
type AvailabilitySummary struct {
	TotalLocations  int     `db:"total_locations" json:"total_locations"`
	TotalCapacity   int     `db:"total_capacity" json:"total_capacity"`
	TotalAvailable  int     `db:"total_available" json:"total_available"`
	UtilizationRate float64 `db:"utilization_rate" json:"utilization_rate"`
	ZonesCount      int     `db:"zones_count" json:"zones_count"`
}
