package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anstrom/reconnode/internal/api/middleware"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/results"
	"github.com/anstrom/reconnode/internal/services"
)

// ServiceScanner browses announced services and checks SMB servers.
type ServiceScanner interface {
	Run(ctx context.Context, prefix string, endpoints []results.Endpoint) (services.Report, error)
	Last() services.Report
}

// ServicesHandler serves the service discovery report.
type ServicesHandler struct {
	ctrl    ScanController
	scanner ServiceScanner
	logger  *slog.Logger
}

// NewServicesHandler creates a services handler. scanner may be nil.
func NewServicesHandler(ctrl ScanController, scanner ServiceScanner, logger *slog.Logger) *ServicesHandler {
	return &ServicesHandler{
		ctrl:    ctrl,
		scanner: scanner,
		logger:  logger.With("handler", "services"),
	}
}

// GetServices handles GET /services with the last report.
func (h *ServicesHandler) GetServices(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeError(w, r, http.StatusServiceUnavailable, fmt.Errorf("service discovery is disabled"))
		return
	}
	writeJSON(w, r, http.StatusOK, h.scanner.Last())
}

// ScanServices handles POST /services/scan. It checks the endpoints found so
// far on the configured network and answers when the scan completes.
func (h *ServicesHandler) ScanServices(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		writeError(w, r, http.StatusServiceUnavailable, fmt.Errorf("service discovery is disabled"))
		return
	}

	report, err := h.scanner.Run(r.Context(), h.ctrl.Config().NetworkPrefix, h.ctrl.Store().Endpoints())
	switch {
	case errors.IsCode(err, errors.CodeScanInProgress):
		writeError(w, r, http.StatusConflict, err)
		return
	case err != nil:
		h.logger.Error("Service scan failed",
			"request_id", middleware.GetRequestID(r),
			"error", err)
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("service scan failed"))
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}
