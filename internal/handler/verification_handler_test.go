package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercaflow/intake-api/internal/dto"
	"github.com/mercaflow/intake-api/internal/models"
	appErrors "github.com/mercaflow/intake-api/pkg/errors"
)

type verificationServiceMock struct {
	workflow     *models.WorkflowStatus
	executeErr   error
	executedStep models.StepName
	executedKey  string
	completeResp *dto.CompleteResponse
	completeErr  error
	rejectReq    dto.RejectRequest
	slipPDF      []byte
	slipErr      error
}

func (m *verificationServiceMock) ExecuteStep(ctx context.Context, queueID string, step models.StepName, req dto.ExecuteStepRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	m.executedStep = step
	m.executedKey = req.SubmissionKey
	if m.executeErr != nil {
		return nil, m.executeErr
	}
	return m.workflow, nil
}

func (m *verificationServiceMock) QualityCheck(ctx context.Context, queueID string, req dto.QualityCheckRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	return m.workflow, nil
}

func (m *verificationServiceMock) Hold(ctx context.Context, queueID string, req dto.HoldRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	return m.workflow, nil
}

func (m *verificationServiceMock) Resume(ctx context.Context, queueID string, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	return m.workflow, nil
}

func (m *verificationServiceMock) Reject(ctx context.Context, queueID string, req dto.RejectRequest, actor *models.JWTClaims) (*models.WorkflowStatus, error) {
	m.rejectReq = req
	return m.workflow, nil
}

func (m *verificationServiceMock) Complete(ctx context.Context, queueID string, req dto.CompleteRequest, actor *models.JWTClaims) (*dto.CompleteResponse, error) {
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return m.completeResp, nil
}

func (m *verificationServiceMock) OpenSlip(ctx context.Context, queueID, token string) ([]byte, string, error) {
	if m.slipErr != nil {
		return nil, "", m.slipErr
	}
	return m.slipPDF, "putaway-PA-ABCDEF1234.pdf", nil
}

func (m *verificationServiceMock) Workflow(ctx context.Context, queueID string) (*models.WorkflowStatus, error) {
	return m.workflow, nil
}

func sampleWorkflow() *models.WorkflowStatus {
	step := models.StepDocumentationCheck
	return &models.WorkflowStatus{
		QueueItemID:        "item-1",
		Status:             models.StatusInProgress,
		StatusLabel:        "In Progress",
		CurrentStep:        &step,
		ProgressPercentage: 20,
	}
}

func TestVerificationHandlerExecuteStep(t *testing.T) {
	mock := &verificationServiceMock{workflow: sampleWorkflow()}
	handler := NewVerificationHandler(mock)
	c, w := testContext(t)
	c.Request = jsonRequest(t, http.MethodPost, "/queue/item-1/steps/initial_inspection", dto.ExecuteStepRequest{
		SubmissionKey: "sub-1",
		Passed:        true,
		Notes:         "no visible damage",
	})
	c.Params = gin.Params{{Key: "id", Value: "item-1"}, {Key: "step", Value: "initial_inspection"}}

	handler.ExecuteStep(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StepInitialInspection, mock.executedStep)
	assert.Equal(t, "sub-1", mock.executedKey)

	var envelope struct {
		Data models.WorkflowStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.StatusInProgress, envelope.Data.Status)
}

func TestVerificationHandlerIdempotencyHeaderWins(t *testing.T) {
	mock := &verificationServiceMock{workflow: sampleWorkflow()}
	handler := NewVerificationHandler(mock)
	c, w := testContext(t)
	c.Request = jsonRequest(t, http.MethodPost, "/queue/item-1/steps/initial_inspection", dto.ExecuteStepRequest{
		SubmissionKey: "body-key",
		Passed:        true,
		Notes:         "ok",
	})
	c.Request.Header.Set("Idempotency-Key", "header-key")
	c.Params = gin.Params{{Key: "id", Value: "item-1"}, {Key: "step", Value: "initial_inspection"}}

	handler.ExecuteStep(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "header-key", mock.executedKey)
}

func TestVerificationHandlerExecuteStepConflict(t *testing.T) {
	mock := &verificationServiceMock{executeErr: appErrors.ErrInvalidStep}
	handler := NewVerificationHandler(mock)
	c, w := testContext(t)
	c.Request = jsonRequest(t, http.MethodPost, "/queue/item-1/steps/final_approval", dto.ExecuteStepRequest{
		SubmissionKey: "sub-1",
		Passed:        true,
		Notes:         "ok",
	})
	c.Params = gin.Params{{Key: "id", Value: "item-1"}, {Key: "step", Value: "final_approval"}}

	handler.ExecuteStep(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_STEP", envelope.Error.Code)
}

func TestVerificationHandlerRejectInvalidBody(t *testing.T) {
	handler := NewVerificationHandler(&verificationServiceMock{})
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/queue/item-1/reject", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.Reject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandlerHoldAcceptsEmptyBody(t *testing.T) {
	mock := &verificationServiceMock{workflow: sampleWorkflow()}
	handler := NewVerificationHandler(mock)
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/queue/item-1/hold", bytes.NewReader(nil))
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.Hold(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerificationHandlerCompleteReturnsPDF(t *testing.T) {
	mock := &verificationServiceMock{completeResp: &dto.CompleteResponse{
		Workflow:     *sampleWorkflow(),
		TrackingCode: "PA-ABCDEF1234",
		SlipPDF:      []byte("%PDF-1.3 fake"),
	}}
	handler := NewVerificationHandler(mock)
	c, w := testContext(t)
	c.Request = jsonRequest(t, http.MethodPost, "/queue/item-1/complete", dto.CompleteRequest{
		SubmissionKey: "sub-final",
		WithSlip:      true,
	})
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.Complete(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "PA-ABCDEF1234")
}

func TestVerificationHandlerSlipRequiresToken(t *testing.T) {
	handler := NewVerificationHandler(&verificationServiceMock{})
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/queue/item-1/slip", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.Slip(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandlerSlipDownload(t *testing.T) {
	handler := NewVerificationHandler(&verificationServiceMock{slipPDF: []byte("%PDF-1.3 fake")})
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/queue/item-1/slip?token=abc", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.Slip(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestVerificationHandlerCompleteWithoutSlip(t *testing.T) {
	mock := &verificationServiceMock{completeResp: &dto.CompleteResponse{
		Workflow:     *sampleWorkflow(),
		TrackingCode: "PA-ABCDEF1234",
	}}
	handler := NewVerificationHandler(mock)
	c, w := testContext(t)
	c.Request = jsonRequest(t, http.MethodPost, "/queue/item-1/complete", dto.CompleteRequest{SubmissionKey: "sub-final"})
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.Complete(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.CompleteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "PA-ABCDEF1234", envelope.Data.TrackingCode)
}
