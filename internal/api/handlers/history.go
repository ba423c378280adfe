package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anstrom/reconnode/internal/scheduler"
)

// HistoryHandler serves recorded scan cycles and the schedule.
type HistoryHandler struct {
	cycles     CycleLister
	migrations MigrationLister
	jobs       JobLister
	logger     *slog.Logger
}

// NewHistoryHandler creates a history handler. Any lister may be nil.
func NewHistoryHandler(cycles CycleLister, migrations MigrationLister, jobs JobLister,
	logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		cycles:     cycles,
		migrations: migrations,
		jobs:       jobs,
		logger:     logger.With("handler", "history"),
	}
}

// ListCycles handles GET /history?limit=N.
func (h *HistoryHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	if h.cycles == nil {
		writeError(w, r, http.StatusServiceUnavailable, fmt.Errorf("scan history is disabled"))
		return
	}

	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit parameter"))
		return
	}

	records, err := h.cycles.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list scan cycles", "error", err)
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to list scan cycles"))
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

// ListMigrations handles GET /history/migrations.
func (h *HistoryHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	if h.migrations == nil {
		writeError(w, r, http.StatusServiceUnavailable, fmt.Errorf("scan history is disabled"))
		return
	}

	statuses, err := h.migrations.Migrations(r.Context())
	if err != nil {
		h.logger.Error("Failed to read migration status", "error", err)
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to read migration status"))
		return
	}
	writeJSON(w, r, http.StatusOK, statuses)
}

// ListSchedules handles GET /schedules.
func (h *HistoryHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobInfo{}
	if h.jobs != nil {
		jobs = h.jobs.Jobs()
	}
	writeJSON(w, r, http.StatusOK, jobs)
}
