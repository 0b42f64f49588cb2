package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mercaflow/intake-api/internal/models"
)

const locationColumns = `id, zone, shelf, position, capacity, current_occupancy, category,
       distance_to_entry, weight_load_kg, avg_stock_age_days, created_at, updated_at`

// LocationRepository persists the warehouse topology registry and the
// per-slot occupancy counters.
type LocationRepository struct {
	db *sqlx.DB
}

// NewLocationRepository constructs the repository.
func NewLocationRepository(db *sqlx.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create registers a new slot.
func (r *LocationRepository) Create(ctx context.Context, loc *models.WarehouseLocation) error {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	loc.CreatedAt = now
	loc.UpdatedAt = now
	const query = `INSERT INTO warehouse_locations
	(id, zone, shelf, position, capacity, current_occupancy, category,
	 distance_to_entry, weight_load_kg, avg_stock_age_days, created_at, updated_at)
	VALUES (:id, :zone, :shelf, :position, :capacity, :current_occupancy, :category,
	 :distance_to_entry, :weight_load_kg, :avg_stock_age_days, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, loc); err != nil {
		return fmt.Errorf("create warehouse location: %w", err)
	}
	return nil
}

// GetByCode fetches a slot by its composite zone-shelf-position key.
func (r *LocationRepository) GetByCode(ctx context.Context, zone, shelf, position string) (*models.WarehouseLocation, error) {
	query := fmt.Sprintf(`SELECT %s FROM warehouse_locations WHERE zone = $1 AND shelf = $2 AND position = $3`, locationColumns)
	var loc models.WarehouseLocation
	if err := r.db.GetContext(ctx, &loc, query, zone, shelf, position); err != nil {
		return nil, err
	}
	return &loc, nil
}

// List returns the full topology ordered by canonical code.
func (r *LocationRepository) List(ctx context.Context) ([]models.WarehouseLocation, error) {
	query := fmt.Sprintf(`SELECT %s FROM warehouse_locations ORDER BY zone, shelf, position`, locationColumns)
	var locations []models.WarehouseLocation
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("list warehouse locations: %w", err)
	}
	return locations, nil
}

// ListAvailable returns slots with remaining capacity, ordered by code so the
// scoring pass is deterministic.
func (r *LocationRepository) ListAvailable(ctx context.Context) ([]models.WarehouseLocation, error) {
	query := fmt.Sprintf(`SELECT %s FROM warehouse_locations
	WHERE current_occupancy < capacity ORDER BY zone, shelf, position`, locationColumns)
	var locations []models.WarehouseLocation
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, fmt.Errorf("list available locations: %w", err)
	}
	return locations, nil
}

// IncrementOccupancy adds one unit to a slot with a compare-and-swap guard so
// two racing assignments can never exceed capacity. The loser observes
// sql.ErrNoRows and must rescore or fail.
func (r *LocationRepository) IncrementOccupancy(ctx context.Context, exec sqlx.ExtContext, locationID string, weightKG float64) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE warehouse_locations
	SET current_occupancy = current_occupancy + 1,
	    weight_load_kg = weight_load_kg + $2,
	    updated_at = NOW()
	WHERE id = $1 AND current_occupancy < capacity`
	result, err := exec.ExecContext(ctx, query, locationID, weightKG)
	if err != nil {
		return fmt.Errorf("increment occupancy: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check occupancy rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ZoneLoads returns per-zone aggregates feeding the weight-balance and
// rotation terms of the scoring function.
func (r *LocationRepository) ZoneLoads(ctx context.Context) ([]models.ZoneLoad, error) {
	const query = `SELECT zone,
	 COALESCE(SUM(weight_load_kg), 0) AS weight_kg,
	 COALESCE(AVG(avg_stock_age_days), 0) AS avg_stock_age_days,
	 COALESCE(SUM(current_occupancy)::float / NULLIF(SUM(capacity), 0), 0) AS utilization
	FROM warehouse_locations GROUP BY zone`
	var loads []models.ZoneLoad
	if err := r.db.SelectContext(ctx, &loads, query); err != nil {
		return nil, fmt.Errorf("zone loads: %w", err)
	}
	return loads, nil
}

// AvailabilitySummary aggregates topology and occupancy in one pass.
func (r *LocationRepository) AvailabilitySummary(ctx context.Context) (*models.AvailabilitySummary, error) {
	const query = `SELECT
	 COUNT(*) AS total_locations,
	 COALESCE(SUM(capacity), 0) AS total_capacity,
	 COALESCE(SUM(capacity - current_occupancy), 0) AS total_available,
	 COALESCE(SUM(current_occupancy)::float / NULLIF(SUM(capacity), 0), 0) AS utilization_rate,
	 COUNT(DISTINCT zone) AS zones_count
	FROM warehouse_locations`
	var summary models.AvailabilitySummary
	if err := r.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("availability summary: %w", err)
	}
	return &summary, nil
}
