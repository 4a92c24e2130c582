package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub/internal/app/maintenance"
	appErrors "github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/response"
)

// MaintenanceHandler exposes the maintenance jobs to an external scheduler.
type MaintenanceHandler struct {
	jobs *maintenance.Jobs
	log  *zap.Logger
}

// NewMaintenanceHandler constructs a MaintenanceHandler.
func NewMaintenanceHandler(jobs *maintenance.Jobs) (*MaintenanceHandler, error) {
	if jobs == nil {
		return nil, errors.New("maintenance handler: jobs are required")
	}
	return &MaintenanceHandler{jobs: jobs, log: logger.WithModule("http.maintenance")}, nil
}

// Hourly handles GET|POST /api/maintenance/cleanup-expired-markers.
func (h *MaintenanceHandler) Hourly(c *gin.Context) {
	report, err := h.jobs.Hourly(requestContext(c))
	if err != nil {
		h.log.Error("hourly cleanup failed", zap.Error(err))
		response.ErrorWithData(c, appErrors.ErrInternalServer, report)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// Daily handles GET|POST /api/maintenance/daily-reset. A partial failure still reports the
// counts of the steps that completed.
func (h *MaintenanceHandler) Daily(c *gin.Context) {
	report, err := h.jobs.Daily(requestContext(c))
	if err != nil {
		h.log.Error("daily reset failed", zap.Error(err))
		response.ErrorWithData(c, appErrors.ErrInternalServer, report)
		return
	}
	response.Success(c, http.StatusOK, report)
}
