package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channellicense/channellicense/internal/api/models"
)

func TestProblemKind_New(t *testing.T) {
	p := models.KindDeviceLimitExceeded.New("req_123", "channel limited has reached its device limit of 1")

	assert.Equal(t, models.ProblemTypeDeviceLimitExceeded, p.Type)
	assert.Equal(t, "Device limit exceeded", p.Title)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, "channel limited has reached its device limit of 1", p.Detail)
	assert.Equal(t, "req_123", p.TraceID)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)
}

func TestProblemKinds(t *testing.T) {
	tests := []struct {
		kind   models.ProblemKind
		status int
	}{
		{models.KindValidation, http.StatusBadRequest},
		{models.KindUnauthorized, http.StatusUnauthorized},
		{models.KindTLSRequired, http.StatusForbidden},
		{models.KindNotFound, http.StatusNotFound},
		{models.KindChannelNotFound, http.StatusNotFound},
		{models.KindConflict, http.StatusConflict},
		{models.KindHasDependents, http.StatusConflict},
		{models.KindDeviceLimitExceeded, http.StatusConflict},
		{models.KindUnsupportedMedia, http.StatusUnsupportedMediaType},
		{models.KindTooManyRequests, http.StatusTooManyRequests},
		{models.KindInternal, http.StatusInternalServerError},
		{models.KindUnavailable, http.StatusServiceUnavailable},
	}

	seen := make(map[string]bool)
	for _, tt := range tests {
		t.Run(tt.kind.Type, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.kind.Status)
			assert.NotEmpty(t, tt.kind.Title)
			assert.True(t, strings.HasPrefix(tt.kind.Type, "https://channellicense.dev/problems/"))
			assert.False(t, seen[tt.kind.Type], "duplicate problem type")
			seen[tt.kind.Type] = true
		})
	}
}

func TestNewValidation(t *testing.T) {
	p := models.NewValidation("req_123", "validation failed", []models.FieldError{
		{Field: "maxDevices", Message: "maxDevices must be greater than 0", Code: "gt"},
		{Field: "name", Message: "name is required", Code: "required"},
	})

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	require.Len(t, p.Errors, 2)
	assert.Equal(t, "maxDevices", p.Errors[0].Field)
	assert.Equal(t, "gt", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewValidation("req_test123", "invalid input", []models.FieldError{
		{Field: "deviceId", Message: "deviceId is required"},
	})
	p.Instance = "/v1/licenses/request"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "Validation error", result.Title)
	assert.Equal(t, http.StatusBadRequest, result.Status)
	assert.Equal(t, "invalid input", result.Detail)
	assert.Equal(t, "/v1/licenses/request", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "deviceId", result.Errors[0].Field)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.KindInternal.New("", "boom").Write(w)

	assert.Empty(t, w.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{
		"type": "https://channellicense.dev/problems/internal-error",
		"title": "Internal server error",
		"status": 500,
		"detail": "boom",
		"traceId": ""
	}`, w.Body.String())
}
