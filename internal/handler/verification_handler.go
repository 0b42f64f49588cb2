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

type verificationService interface {
	ExecuteStep(ctx context.Context, queueID string, step models.StepName, req dto.ExecuteStepRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error)
	QualityCheck(ctx context.Context, queueID string, req dto.QualityCheckRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error)
	Hold(ctx context.Context, queueID string, req dto.HoldRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error)
	Resume(ctx context.Context, queueID string, actor *models.JWTClaims) (*models.WorkflowStatus, error)
	Reject(ctx context.Context, queueID string, req dto.RejectRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error)
	Complete(ctx context.Context, queueID string, req dto.CompleteRequest, actor *models.JWTClaims) (*dto.CompleteResponse, error)
	OpenSlip(ctx context.Context, queueID, token string) ([]byte, string, error)
	Workflow(ctx context.Context, queueID string) (*models.WorkflowStatus, error)
}

// VerificationHandler exposes the step state machine over REST.
type VerificationHandler struct {
	service verificationService
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(service verificationService) *VerificationHandler {
	return &VerificationHandler{service: service}
}

// ExecuteStep godoc
// @Summary Execute the item's current verification step
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param step path string true "Step name"
// @Param Idempotency-Key header string false "Submission key override"
// @Param payload body dto.ExecuteStepRequest true "Step outcome"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/steps/{step} [post]
func (h *VerificationHandler) ExecuteStep(c *gin.Context) {
	var req dto.ExecuteStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid step payload"))
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.SubmissionKey = key
	}
	status, err := h.service.ExecuteStep(c.Request.Context(), c.Param("id"), models.StepName(c.Param("step")), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// QualityCheck godoc
// @Summary Submit the quality assessment checklist
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body dto.QualityCheckRequest true "Checklist"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/quality-check [post]
func (h *VerificationHandler) QualityCheck(c *gin.Context) {
	var req dto.QualityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid quality check payload"))
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.SubmissionKey = key
	}
	status, err := h.service.QualityCheck(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Hold godoc
// @Summary Put an active item on hold
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body dto.HoldRequest false "Hold notes"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/hold [post]
func (h *VerificationHandler) Hold(c *gin.Context) {
	var req dto.HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid hold payload"))
		return
	}
	status, err := h.service.Hold(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Resume godoc
// @Summary Resume an on-hold item
// @Tags Verification
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/resume [post]
func (h *VerificationHandler) Resume(c *gin.Context) {
	status, err := h.service.Resume(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Reject godoc
// @Summary Reject an item from any non-terminal state
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/reject [post]
func (h *VerificationHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reject payload"))
		return
	}
	status, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Complete godoc
// @Summary Finish final approval, optionally returning a putaway slip PDF
// @Tags Verification
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body dto.CompleteRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/complete [post]
func (h *VerificationHandler) Complete(c *gin.Context) {
	var req dto.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid complete payload"))
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.SubmissionKey = key
	}
	resp, err := h.service.Complete(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.WithSlip && len(resp.SlipPDF) > 0 {
		c.Header("Content-Disposition", `attachment; filename="putaway-`+resp.TrackingCode+`.pdf"`)
		c.Data(http.StatusOK, "application/pdf", resp.SlipPDF)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Slip godoc
// @Summary Download an archived putaway slip with a signed token
// @Tags Verification
// @Produce application/pdf
// @Param id path string true "Queue item ID"
// @Param token query string true "Signed download token"
// @Success 200 {string} string "PDF payload"
// @Router /queue/{id}/slip [get]
func (h *VerificationHandler) Slip(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter is required"))
		return
	}
	raw, filename, err := h.service.OpenSlip(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", raw)
}

// Workflow godoc
// @Summary Current state machine view of one item
// @Tags Verification
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/workflow [get]
func (h *VerificationHandler) Workflow(c *gin.Context) {
	status, err := h.service.Workflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
