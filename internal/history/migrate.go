package history

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
)

//go:embed *.sql
var migrationFiles embed.FS

// Migration is a row of schema_migrations.
type Migration struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	AppliedAt time.Time `db:"applied_at"`
	Checksum  string    `db:"checksum"`
}

// MigrationStatus reports whether an embedded migration has been applied.
type MigrationStatus struct {
	Name      string    `json:"name"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"appliedAt,omitempty"`
	// Modified is set when the embedded file no longer matches the applied checksum.
	Modified bool `json:"modified"`
}

// Migrator applies the embedded schema to the history database.
type Migrator struct {
	db    *sqlx.DB
	files fs.FS
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{db: db, files: migrationFiles}
}

const createMigrationsTableQuery = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		applied_at TIMESTAMPTZ DEFAULT NOW(),
		checksum VARCHAR(64) NOT NULL
	)`

const appliedMigrationsQuery = `SELECT id, name, applied_at, checksum FROM schema_migrations ORDER BY id`

const recordMigrationQuery = `INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createMigrationsTableQuery); err != nil {
		return migrationError("create migrations table", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]Migration, error) {
	var rows []Migration
	if err := m.db.SelectContext(ctx, &rows, appliedMigrationsQuery); err != nil {
		return nil, migrationError("list applied migrations", err)
	}

	applied := make(map[string]Migration, len(rows))
	for _, row := range rows {
		applied[row.Name] = row
	}
	return applied, nil
}

func (m *Migrator) migrationFiles() ([]string, error) {
	var files []string
	err := fs.WalkDir(m.files, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, migrationError("read migration files", err)
	}

	sort.Strings(files)
	return files, nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func migrationName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), ".sql")
}

func (m *Migrator) execute(ctx context.Context, file string) error {
	content, err := fs.ReadFile(m.files, file)
	if err != nil {
		return migrationError("read "+file, err)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return migrationError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return migrationError("execute "+file, err)
	}
	if _, err := tx.ExecContext(ctx, recordMigrationQuery, migrationName(file), checksum(content)); err != nil {
		return migrationError("record "+file, err)
	}
	if err := tx.Commit(); err != nil {
		return migrationError("commit "+file, err)
	}
	return nil
}

// Up applies every embedded migration not yet recorded, in file name order.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	files, err := m.migrationFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		name := migrationName(file)
		if _, ok := applied[name]; ok {
			logging.Debug("Migration already applied, skipping", "migration", name)
			continue
		}

		logging.InfoStore("Applying migration", "migration", name)
		if err := m.execute(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.migrationFiles()
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, file := range files {
		name := migrationName(file)
		status := MigrationStatus{Name: name}
		if row, ok := applied[name]; ok {
			status.Applied = true
			status.AppliedAt = row.AppliedAt
			if content, err := fs.ReadFile(m.files, file); err == nil {
				status.Modified = checksum(content) != row.Checksum
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func migrationError(op string, err error) error {
	return errors.WrapStorageError(errors.CodeStorageMigration,
		fmt.Sprintf("Migration step failed: %s", op), err).WithOperation(op)
}
