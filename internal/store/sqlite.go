package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// timeLayout is fixed-width UTC so stored timestamps compare lexically in
// the same order as chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	username        TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	priority            TEXT NOT NULL DEFAULT 'medium',
	user_id             INTEGER REFERENCES users(id) ON DELETE SET NULL,
	created_by          INTEGER REFERENCES users(id) ON DELETE SET NULL,
	start_date          TEXT,
	end_date            TEXT,
	jira_link           TEXT NOT NULL DEFAULT '',
	pull_requests_links TEXT NOT NULL DEFAULT '',
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_title ON tasks(title);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_dates ON tasks(start_date, end_date);
`

// SQLiteStore implements the primary store on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string

	// now is replaceable in tests.
	now func() time.Time
}

// Open opens or creates the database at path. An empty path opens a private
// in-memory database.
func Open(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, taskerrors.StorageError(fmt.Sprintf("failed to create directory for %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, taskerrors.StorageError("failed to open database", err)
	}

	// Single writer; also keeps one shared connection for :memory:.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, taskerrors.StorageError("failed to set pragma", err).WithDetail("pragma", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, taskerrors.StorageError("failed to create schema", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(CurrentSchemaVersion)); err != nil {
		_ = db.Close()
		return nil, taskerrors.StorageError("failed to record schema version", err)
	}

	slog.Debug("store_opened", slog.String("path", path))
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// SchemaVersion returns the version recorded when the database was created.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v string
	if err := s.db.QueryRowContext(ctx,
		`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&v); err != nil {
		return 0, taskerrors.StorageError("failed to read schema version", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, taskerrors.New(taskerrors.ErrCodeStorageCorrupt, "schema version is not a number", err)
	}
	return n, nil
}

// Path returns the database path ("" for in-memory).
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

// nullID stores user reference 0 as NULL.
func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
