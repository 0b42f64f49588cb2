package handler

import (
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

type assignmentServiceMock struct {
	autoResp    *models.AssignmentResult
	autoErr     error
	manualResp  *models.AssignmentResult
	manualErr   error
	suggestions []models.LocationSuggestion
	limit       int
}

func (m *assignmentServiceMock) AutoAssign(ctx context.Context, queueID string, actor *models.JWTClaims) (*models.AssignmentResult, error) {
	if m.autoErr != nil {
		return nil, m.autoErr
	}
	return m.autoResp, nil
}

func (m *assignmentServiceMock) ManualAssign(ctx context.Context, queueID string, req dto.ManualAssignRequest, actor *models.JWTClaims) (*models.AssignmentResult, error) {
	if m.manualErr != nil {
		return nil, m.manualErr
	}
	return m.manualResp, nil
}

func (m *assignmentServiceMock) SuggestLocations(ctx context.Context, queueID string, limit int) ([]models.LocationSuggestion, error) {
	m.limit = limit
	return m.suggestions, nil
}

func TestAssignmentHandlerAutoAssign(t *testing.T) {
	mock := &assignmentServiceMock{autoResp: &models.AssignmentResult{
		QueueItemID:      "item-1",
		AssignedLocation: "A-01-03",
		Strategy:         models.StrategyAutomatic,
		Score:            0.87,
		NewStatus:        models.StatusApproved,
	}}
	handler := NewAssignmentHandler(mock)
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/queue/item-1/location/auto", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.AutoAssign(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.AssignmentResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "A-01-03", envelope.Data.AssignedLocation)
	assert.Equal(t, models.StrategyAutomatic, envelope.Data.Strategy)
}

func TestAssignmentHandlerAutoAssignNoCapacityMeta(t *testing.T) {
	handler := NewAssignmentHandler(&assignmentServiceMock{autoErr: appErrors.ErrNoCapacity})
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/queue/item-1/location/auto", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.AutoAssign(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Error *appErrors.Error       `json:"error"`
		Meta  map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "NO_CAPACITY", envelope.Error.Code)
	assert.Equal(t, true, envelope.Meta["manual_assignment_required"])
}

func TestAssignmentHandlerManualAssignInvalidLocation(t *testing.T) {
	handler := NewAssignmentHandler(&assignmentServiceMock{manualErr: appErrors.ErrInvalidLocation})
	c, w := testContext(t)
	c.Request = jsonRequest(t, http.MethodPost, "/queue/item-1/location/manual", dto.ManualAssignRequest{
		Zone: "Z", Shelf: "99", Position: "99",
	})
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.ManualAssign(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAssignmentHandlerSuggestionsLimit(t *testing.T) {
	mock := &assignmentServiceMock{suggestions: []models.LocationSuggestion{{Code: "A-01-01", Score: 0.9}}}
	handler := NewAssignmentHandler(mock)
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/queue/item-1/location/suggestions?limit=3", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "item-1"}}

	handler.Suggestions(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, mock.limit)
}
