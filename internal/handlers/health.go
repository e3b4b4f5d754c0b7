package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/edgexpo/voicegateway/internal/health"
)

// HealthReporter produces the two health views
type HealthReporter interface {
	Report(ctx context.Context) health.OpsReport
	SystemReport(ctx context.Context) health.SystemReport
}

// HealthHandler handles the health endpoints
type HealthHandler struct {
	reporter HealthReporter
	logger   *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(reporter HealthReporter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		reporter: reporter,
		logger:   logger,
	}
}

// Ops handles GET /api/health. It always answers 200; the status field
// carries the result.
func (h *HealthHandler) Ops(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.Report(r.Context())

	h.logger.Info("health check completed", "status", report.Status)
	writeJSON(w, http.StatusOK, report)
}

// System handles GET /api/v1/system/health. A failed aggregation answers 500.
func (h *HealthHandler) System(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.SystemReport(r.Context())

	status := http.StatusOK
	if report.Error != "" {
		h.logger.Error("system health check failed", "error", report.Error)
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}
