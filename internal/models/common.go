package models

import "time"

// Pagination describes list response paging metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// ProductInfo is the catalog collaborator's view of a product, used to
// validate references and feed the scoring function.
type ProductInfo struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	LengthCM   float64 `json:"length_cm"`
	WidthCM    float64 `json:"width_cm"`
	HeightCM   float64 `json:"height_cm"`
	WeightKG   float64 `json:"weight_kg"`
	FastMoving bool    `json:"fast_moving"`
}

// Volume returns the product footprint in cubic centimetres.
func (p ProductInfo) Volume() float64 {
	return p.LengthCM * p.WidthCM * p.HeightCM
}

// SystemMetrics is the snapshot served by the observability endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
