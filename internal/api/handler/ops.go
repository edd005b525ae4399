// Package handler provides HTTP handlers for the channel license API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/channellicense/channellicense/internal/api/models"
	"github.com/channellicense/channellicense/internal/api/response"
)

// ReadinessChecker reports whether the database can serve requests.
type ReadinessChecker interface {
	Check(ctx context.Context) error
	State() string
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	health    ReadinessChecker
}

// NewOpsHandler creates a new OpsHandler. health may be nil, in which case
// readiness always succeeds.
func NewOpsHandler(version, buildTime string, health ReadinessChecker) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		health:    health,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Version:   h.version,
		BuildTime: h.buildTime,
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Check(r.Context()); err != nil {
			response.ServiceUnavailable(w, r, "database is not reachable")
			return
		}
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Version:    h.version,
		Subsystems: []models.SubsystemStatus{},
	}

	if h.health != nil {
		db := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
		if err := h.health.Check(r.Context()); err != nil {
			db.Status = models.HealthStatusFail
			status.Status = models.HealthStatusDegraded
		}
		state := h.health.State()
		db.Detail = &state
		status.Subsystems = append(status.Subsystems, db)
	}

	response.JSON(w, r, http.StatusOK, status)
}
