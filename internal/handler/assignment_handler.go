package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
	"github.com/mercaflow/intake-api/pkg/response"
)

type assignmentService interface {
	AutoAssign(ctx context.Context, queueID string, actor *models.JWTClaims) (*models.AssignmentResult, error)
	ManualAssign(ctx context.Context, queueID string, req dto.ManualAssignRequest, actor *models.JWTClaims) (*models.AssignmentResult, error)
	SuggestLocations(ctx context.Context, queueID string, limit int) ([]models.LocationSuggestion, error)
}

// AssignmentHandler exposes the location assignment engine.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// AutoAssign godoc
// @Summary Automatically assign the best warehouse location
// @Tags Assignment
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/location/auto [post]
func (h *AssignmentHandler) AutoAssign(c *gin.Context) {
	result, err := h.service.AutoAssign(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNoCapacity) {
			appErr := appErrors.FromError(err)
			c.JSON(appErr.Status, response.Envelope{
				Error: appErr,
				Meta:  map[string]interface{}{"manual_assignment_required": true},
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ManualAssign godoc
// @Summary Assign an explicit warehouse location
// @Tags Assignment
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body dto.ManualAssignRequest true "Target location"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/location/manual [post]
func (h *AssignmentHandler) ManualAssign(c *gin.Context) {
	var req dto.ManualAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid manual assignment payload"))
		return
	}
	result, err := h.service.ManualAssign(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Suggestions godoc
// @Summary Top scored location candidates for manual assignment
// @Tags Assignment
// @Produce json
// @Param id path string true "Queue item ID"
// @Param limit query int false "Number of suggestions"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/location/suggestions [get]
func (h *AssignmentHandler) Suggestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	suggestions, err := h.service.SuggestLocations(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestions, nil)
}
