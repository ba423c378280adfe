// Package handlers provides the HTTP handlers of the reconnode API.
// This file holds the collaborator interfaces and response helpers shared by
// all handler groups.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/anstrom/reconnode/internal/api/middleware"
	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/history"
	"github.com/anstrom/reconnode/internal/results"
	"github.com/anstrom/reconnode/internal/scanning"
	"github.com/anstrom/reconnode/internal/scheduler"
)

// ScanController is the orchestrator surface the API drives.
type ScanController interface {
	StartScan() bool
	PauseScan() bool
	ResumeScan() bool
	State() scanning.State
	LastScanID() string
	Progress() scanning.Progress
	Config() config.ScanConfig
	Store() *results.Store
}

// CycleLister reads recorded scan cycles.
type CycleLister interface {
	Recent(ctx context.Context, limit int) ([]history.CycleRecord, error)
}

// MigrationLister reports the schema migration state of the history database.
type MigrationLister interface {
	Migrations(ctx context.Context) ([]history.MigrationStatus, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobLister lists scheduled scan triggers.
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// StatusResponse acknowledges a state-changing command.
type StatusResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	ScanID string `json:"scanId,omitempty"`
}

// getQueryParamInt extracts integer query parameter with default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	if value := r.URL.Query().Get(key); value != "" {
		return strconv.Atoi(value)
	}
	return defaultValue, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeRawJSON writes an already serialized body.
func writeRawJSON(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	writeJSON(w, r, statusCode, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}
