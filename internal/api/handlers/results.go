package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/anstrom/reconnode/internal/api/middleware"
	"github.com/anstrom/reconnode/internal/results"
)

// ResultsHandler serves the result store: recent results, endpoints and stats.
type ResultsHandler struct {
	ctrl   ScanController
	logger *slog.Logger
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(ctrl ScanController, logger *slog.Logger) *ResultsHandler {
	return &ResultsHandler{
		ctrl:   ctrl,
		logger: logger.With("handler", "results"),
	}
}

// GetResults handles GET /results, the recent open-port ring oldest first.
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	body, err := h.ctrl.Store().ResultsJSON(h.prefix())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to encode results"))
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// ClearResults handles DELETE /results.
func (h *ResultsHandler) ClearResults(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Store().Clear()
	h.logger.Info("Results cleared via API", "request_id", middleware.GetRequestID(r))
	w.WriteHeader(http.StatusNoContent)
}

// GetStats handles GET /stats.
func (h *ResultsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	body, err := h.ctrl.Store().StatsJSON()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to encode stats"))
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// GetEndpoints handles GET /endpoints. sort=risk orders by descending risk;
// limit truncates after sorting.
func (h *ResultsHandler) GetEndpoints(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit parameter"))
		return
	}

	store := h.ctrl.Store()
	var endpoints []results.Endpoint
	switch sortBy := r.URL.Query().Get("sort"); sortBy {
	case "", "host":
		endpoints = store.Endpoints()
	case "risk":
		endpoints = store.EndpointsByRisk()
	default:
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("unsupported sort %q", sortBy))
		return
	}

	if limit > 0 && limit < len(endpoints) {
		endpoints = endpoints[:limit]
	}

	prefix := h.prefix()
	views := make([]results.EndpointView, 0, len(endpoints))
	for _, ep := range endpoints {
		views = append(views, results.NewEndpointView(prefix, ep))
	}
	writeJSON(w, r, http.StatusOK, views)
}

// GetEndpoint handles GET /endpoints/{host}, where host is the numeric suffix.
func (h *ResultsHandler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["host"]
	hostID, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid host id: %s", raw))
		return
	}

	ep, ok := h.ctrl.Store().Endpoint(uint8(hostID))
	if !ok {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("no endpoint for host %d", hostID))
		return
	}
	writeJSON(w, r, http.StatusOK, results.NewEndpointView(h.prefix(), ep))
}

func (h *ResultsHandler) prefix() string {
	return h.ctrl.Config().NetworkPrefix
}
