package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
	"github.com/mercaflow/intake-api/pkg/response"
)

type queueService interface {
	Create(ctx context.Context, req dto.CreateQueueItemRequest, actor *models.JWTClaims) (*dto.QueueItemView, error)
	Get(ctx context.Context, id string) (*dto.QueueItemView, error)
	List(ctx context.Context, query dto.QueueItemQuery) ([]dto.QueueItemView, *models.Pagination, error)
	UpdateFields(ctx context.Context, id string, req dto.UpdateQueueItemRequest, actor *models.JWTClaims) (*dto.QueueItemView, error)
	Assign(ctx context.Context, id string, req dto.AssignQueueItemRequest, actor *models.JWTClaims) (*dto.QueueItemView, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
	ExportCSV(ctx context.Context, query dto.QueueItemQuery) ([]byte, error)
}

// QueueHandler exposes REST endpoints for the verification queue.
type QueueHandler struct {
	service queueService
}

// NewQueueHandler constructs the handler.
func NewQueueHandler(service queueService) *QueueHandler {
	return &QueueHandler{service: service}
}

// Create godoc
// @Summary Register an incoming shipment on the verification queue
// @Tags Queue
// @Accept json
// @Produce json
// @Param payload body dto.CreateQueueItemRequest true "Queue item payload"
// @Success 201 {object} response.Envelope
// @Router /queue [post]
func (h *QueueHandler) Create(c *gin.Context) {
	var req dto.CreateQueueItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid queue item payload"))
		return
	}
	view, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, view, nil)
}

// List godoc
// @Summary List queue items ordered by deadline
// @Tags Queue
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param priority query string false "Priority filter"
// @Param assigned_to query string false "Assignee filter"
// @Param vendor_id query string false "Vendor filter"
// @Param overdue_only query bool false "Only items past their deadline"
// @Param delayed_only query bool false "Only delayed items"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /queue [get]
func (h *QueueHandler) List(c *gin.Context) {
	query := parseQueueQuery(c)
	views, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Get godoc
// @Summary Get one queue item with step history and derived fields
// @Tags Queue
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id} [get]
func (h *QueueHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Patch non-workflow fields of a queue item
// @Tags Queue
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body dto.UpdateQueueItemRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Router /queue/{id} [patch]
func (h *QueueHandler) Update(c *gin.Context) {
	var req dto.UpdateQueueItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid update payload"))
		return
	}
	view, err := h.service.UpdateFields(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Assign godoc
// @Summary Claim a pending queue item for an administrator
// @Tags Queue
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body dto.AssignQueueItemRequest true "Assignee"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/assign [post]
func (h *QueueHandler) Assign(c *gin.Context) {
	var req dto.AssignQueueItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assign payload"))
		return
	}
	view, err := h.service.Assign(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Stats godoc
// @Summary Aggregate queue statistics
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/stats [get]
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export the filtered queue as CSV
// @Tags Queue
// @Produce text/csv
// @Success 200 {string} string "CSV payload"
// @Router /queue/export [get]
func (h *QueueHandler) Export(c *gin.Context) {
	raw, err := h.service.ExportCSV(c.Request.Context(), parseQueueQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := "queue-" + time.Now().UTC().Format("20060102-150405") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", raw)
}

func parseQueueQuery(c *gin.Context) dto.QueueItemQuery {
	query := dto.QueueItemQuery{
		Priority:   models.Priority(strings.ToLower(strings.TrimSpace(c.Query("priority")))),
		AssignedTo: strings.TrimSpace(c.Query("assigned_to")),
		VendorID:   strings.TrimSpace(c.Query("vendor_id")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.VerificationStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.VerificationStatus(part))
		}
		query.Status = statuses
	}
	query.OverdueOnly, _ = strconv.ParseBool(c.DefaultQuery("overdue_only", "false"))
	query.DelayedOnly, _ = strconv.ParseBool(c.DefaultQuery("delayed_only", "false"))
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	return query
}
