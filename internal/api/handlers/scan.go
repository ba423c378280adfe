package handlers

import (
	"log/slog"
	"net/http"

	"github.com/anstrom/reconnode/internal/api/middleware"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/metrics"
	"github.com/anstrom/reconnode/internal/scanning"
)

// ScanHandler handles scan lifecycle commands and progress queries.
type ScanHandler struct {
	ctrl    ScanController
	logger  *slog.Logger
	metrics metrics.MetricsRegistry
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(ctrl ScanController, logger *slog.Logger, registry metrics.MetricsRegistry) *ScanHandler {
	return &ScanHandler{
		ctrl:    ctrl,
		logger:  logger.With("handler", "scan"),
		metrics: registry,
	}
}

// ProgressResponse is the body of GET /scan/progress.
type ProgressResponse struct {
	State    string            `json:"state"`
	ScanID   string            `json:"scanId,omitempty"`
	Progress scanning.Progress `json:"progress"`
}

// StartScan handles POST /scan/start. A running or paused scan yields 409.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.StartScan() {
		h.refused(w, r, "start", errors.ErrScanInProgress())
		return
	}

	scanID := h.ctrl.LastScanID()
	h.logger.Info("Scan started via API",
		"request_id", middleware.GetRequestID(r),
		"scan_id", scanID)
	h.count("start", "accepted")

	writeJSON(w, r, http.StatusAccepted, StatusResponse{
		Status: "started",
		State:  h.ctrl.State().String(),
		ScanID: scanID,
	})
}

// PauseScan handles POST /scan/pause. Only a scanning orchestrator pauses.
func (h *ScanHandler) PauseScan(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.PauseScan() {
		h.refused(w, r, "pause", h.invalidState("pause"))
		return
	}
	h.count("pause", "accepted")
	writeJSON(w, r, http.StatusOK, StatusResponse{
		Status: "paused",
		State:  h.ctrl.State().String(),
		ScanID: h.ctrl.LastScanID(),
	})
}

// ResumeScan handles POST /scan/resume. Only a paused orchestrator resumes.
func (h *ScanHandler) ResumeScan(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.ResumeScan() {
		h.refused(w, r, "resume", h.invalidState("resume"))
		return
	}
	h.count("resume", "accepted")
	writeJSON(w, r, http.StatusOK, StatusResponse{
		Status: "resumed",
		State:  h.ctrl.State().String(),
		ScanID: h.ctrl.LastScanID(),
	})
}

// GetProgress handles GET /scan/progress.
func (h *ScanHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, ProgressResponse{
		State:    h.ctrl.State().String(),
		ScanID:   h.ctrl.LastScanID(),
		Progress: h.ctrl.Progress(),
	})
}

// GetConfig handles GET /scan/config.
func (h *ScanHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.ctrl.Config())
}

func (h *ScanHandler) invalidState(action string) error {
	return errors.ErrInvalidState(action, h.ctrl.State().String())
}

func (h *ScanHandler) refused(w http.ResponseWriter, r *http.Request, action string, err error) {
	h.logger.Info("Scan command refused",
		"request_id", middleware.GetRequestID(r),
		"action", action,
		"state", h.ctrl.State().String())
	h.count(action, "refused")
	writeError(w, r, http.StatusConflict, err)
}

func (h *ScanHandler) count(action, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.Counter("scan_commands_total", metrics.Labels{
		"action":  action,
		"outcome": outcome,
	})
}
