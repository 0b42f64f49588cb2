package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
	"github.com/mercaflow/intake-api/pkg/response"
)

type warehouseService interface {
	AvailabilitySummary(ctx context.Context) (*models.AvailabilitySummary, error)
	RegisterLocation(ctx context.Context, req dto.RegisterLocationRequest, actor *models.JWTClaims) (*models.WarehouseLocation, error)
	ListLocations(ctx context.Context) ([]models.WarehouseLocation, error)
}

// WarehouseHandler exposes the topology registry and availability summary.
type WarehouseHandler struct {
	service warehouseService
}

// NewWarehouseHandler constructs the handler.
func NewWarehouseHandler(service warehouseService) *WarehouseHandler {
	return &WarehouseHandler{service: service}
}

// Availability godoc
// @Summary Warehouse-wide capacity and utilization
// @Tags Warehouse
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /warehouse/availability [get]
func (h *WarehouseHandler) Availability(c *gin.Context) {
	summary, err := h.service.AvailabilitySummary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// List godoc
// @Summary List registered warehouse locations
// @Tags Warehouse
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /warehouse/locations [get]
func (h *WarehouseHandler) List(c *gin.Context) {
	locations, err := h.service.ListLocations(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, locations, nil)
}

// Register godoc
// @Summary Register a new warehouse location
// @Tags Warehouse
// @Accept json
// @Produce json
// @Param payload body dto.RegisterLocationRequest true "Location"
// @Success 201 {object} response.Envelope
// @Router /warehouse/locations [post]
func (h *WarehouseHandler) Register(c *gin.Context) {
	var req dto.RegisterLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid location payload"))
		return
	}
	loc, err := h.service.RegisterLocation(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, loc, nil)
}
