// Package history persists completed scan cycles to PostgreSQL. It is
// optional: when history is disabled the orchestrator runs without a
// recorder and nothing here is touched.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/scanning"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// sanitizeError converts driver errors into StorageErrors that carry no SQL
// or credentials in their message. The driver error stays available as Cause.
func sanitizeError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if err == sql.ErrNoRows {
		return errors.WrapStorageError(errors.CodeStorageQuery, "No rows", err).WithOperation(operation)
	}

	if pqErr, ok := err.(*pq.Error); ok {
		var storageErr *errors.StorageError
		switch pqErr.Code {
		case "23505": // unique_violation
			storageErr = errors.WrapStorageError(errors.CodeStorageQuery, "Cycle already recorded", err)
		case "57014": // query_canceled
			storageErr = errors.WrapStorageError(errors.CodeStorageTimeout, "History operation was canceled", err)
		case "57P01", "08000", "08003", "08006": // admin_shutdown, connection errors
			storageErr = errors.WrapStorageError(errors.CodeStorageConnection, "History database connection error", err)
		default:
			storageErr = errors.WrapStorageError(errors.CodeStorageQuery,
				fmt.Sprintf("History operation failed: %s", operation), err)
		}
		return storageErr.WithOperation(operation)
	}

	if err == context.DeadlineExceeded || err == context.Canceled {
		return errors.WrapStorageError(errors.CodeStorageTimeout, "History operation timed out", err).
			WithOperation(operation)
	}

	return errors.WrapStorageError(errors.CodeStorageQuery,
		fmt.Sprintf("History operation failed: %s", operation), err).WithOperation(operation)
}

// queryError is sanitizeError with the failing statement kept on Query.
func queryError(operation, query string, err error) error {
	serr := sanitizeError(operation, err)
	if storageErr, ok := serr.(*errors.StorageError); ok {
		storageErr.WithQuery(strings.Join(strings.Fields(query), " "))
	}
	return serr
}

// DSN builds the lib/pq key=value connection string for cfg.
func DSN(cfg config.HistoryConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database,
		cfg.Username, cfg.Password, cfg.SSLMode,
	)
}

// Connect opens and pings the history database.
func Connect(ctx context.Context, cfg config.HistoryConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", DSN(cfg))
	if err != nil {
		return nil, errors.WrapStorageError(errors.CodeStorageConnection,
			"Failed to connect to history database", err).WithOperation("connect")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logging.InfoStore("Connected to history database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database)
	return db, nil
}

// CycleRecord is one row of scan_cycles.
type CycleRecord struct {
	ID              string    `db:"id" json:"id"`
	StartedAt       time.Time `db:"started_at" json:"startedAt"`
	FinishedAt      time.Time `db:"finished_at" json:"finishedAt"`
	DurationSeconds int64     `db:"duration_seconds" json:"durationSeconds"`
	HostsPlanned    int       `db:"hosts_planned" json:"hostsPlanned"`
	IPsScanned      int64     `db:"ips_scanned" json:"ipsScanned"`
	PortsChecked    int64     `db:"ports_checked" json:"portsChecked"`
	OpenResults     int       `db:"open_results" json:"openResults"`
	DrainTimedOut   bool      `db:"drain_timed_out" json:"drainTimedOut"`
}

func recordFromCycle(c scanning.Cycle) CycleRecord {
	return CycleRecord{
		ID:              c.ID,
		StartedAt:       c.StartedAt.UTC(),
		FinishedAt:      c.FinishedAt.UTC(),
		DurationSeconds: int64(c.DurationSeconds),
		HostsPlanned:    c.HostsPlanned,
		IPsScanned:      int64(c.IPsScanned),
		PortsChecked:    int64(c.PortsChecked),
		OpenResults:     c.OpenResults,
		DrainTimedOut:   c.DrainTimedOut,
	}
}

// PostgresRecorder writes scan cycles to the scan_cycles table.
type PostgresRecorder struct {
	db *sqlx.DB
}

// NewPostgresRecorder returns a recorder over an open database.
func NewPostgresRecorder(db *sqlx.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Open connects, applies pending migrations and returns a ready recorder.
func Open(ctx context.Context, cfg config.HistoryConfig) (*PostgresRecorder, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := NewMigrator(db).Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresRecorder(db), nil
}

const insertCycleQuery = `
	INSERT INTO scan_cycles (
		id, started_at, finished_at, duration_seconds, hosts_planned,
		ips_scanned, ports_checked, open_results, drain_timed_out
	) VALUES (
		:id, :started_at, :finished_at, :duration_seconds, :hosts_planned,
		:ips_scanned, :ports_checked, :open_results, :drain_timed_out
	)`

// RecordCycle inserts one completed cycle.
func (r *PostgresRecorder) RecordCycle(ctx context.Context, cycle scanning.Cycle) error {
	if cycle.ID == "" {
		return errors.WrapStorageError(errors.CodeStorageQuery, "Cycle has no id", nil).
			WithOperation("record cycle")
	}

	if _, err := r.db.NamedExecContext(ctx, insertCycleQuery, recordFromCycle(cycle)); err != nil {
		return queryError("record cycle", insertCycleQuery, err)
	}
	return nil
}

const recentCyclesQuery = `
	SELECT id, started_at, finished_at, duration_seconds, hosts_planned,
	       ips_scanned, ports_checked, open_results, drain_timed_out
	FROM scan_cycles
	ORDER BY started_at DESC
	LIMIT $1`

// Recent returns up to limit cycles, newest first. A non-positive limit
// selects the default.
func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	records := []CycleRecord{}
	if err := r.db.SelectContext(ctx, &records, recentCyclesQuery, limit); err != nil {
		return nil, queryError("recent cycles", recentCyclesQuery, err)
	}
	return records, nil
}

// Migrations reports the applied state of every embedded migration.
func (r *PostgresRecorder) Migrations(ctx context.Context) ([]MigrationStatus, error) {
	return NewMigrator(r.db).Status(ctx)
}

// Close closes the underlying database.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}

// Ping checks that the history database is reachable.
func (r *PostgresRecorder) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return sanitizeError("ping", err)
	}
	return nil
}
