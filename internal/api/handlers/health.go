package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// Status constants.
const (
	StatusHealthy       = "healthy"
	StatusUnhealthy     = "unhealthy"
	StatusNotConfigured = "not configured"
)

// HealthHandler handles liveness, health and version endpoints.
type HealthHandler struct {
	ctrl      ScanController
	history   Pinger
	version   string
	logger    *slog.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. history may be nil.
func NewHealthHandler(ctrl ScanController, history Pinger, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		ctrl:      ctrl,
		history:   history,
		version:   version,
		logger:    logger.With("handler", "health"),
		startTime: time.Now(),
	}
}

// LivenessResponse represents a simple liveness check response.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	ScanState string            `json:"scanState"`
	Checks    map[string]string `json:"checks"`
}

// VersionResponse carries build information.
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Service   string `json:"service"`
}

// Liveness handles GET /liveness without dependency checks.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Health handles GET /health. An unreachable history database answers 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := StatusHealthy
	checks := map[string]string{}

	if h.history == nil {
		checks["history"] = StatusNotConfigured
	} else if err := h.history.Ping(ctx); err != nil {
		h.logger.Warn("History health check failed", "error", err)
		status = StatusUnhealthy
		checks["history"] = StatusUnhealthy
	} else {
		checks["history"] = StatusHealthy
	}

	code := http.StatusOK
	if status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, r, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		ScanState: h.ctrl.State().String(),
		Checks:    checks,
	})
}

// Version handles GET /version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, VersionResponse{
		Version:   h.version,
		GoVersion: runtime.Version(),
		Service:   "reconnode",
	})
}
