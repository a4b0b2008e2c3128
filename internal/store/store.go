// Package store persists snapshots of the usage graph to SQLite so other
// tools can query an index without reparsing the repository.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is recorded in the metadata table. A database with a
// different version is rebuilt on Migrate.
const SchemaVersion = "1"

// Store is the SQLite data access layer for the index tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for read-only queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes. A database written by another
// schema version is dropped and recreated. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, metadataDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	v, err := s.Meta(ctx, "schema_version")
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if v != "" && v != SchemaVersion {
		if _, err := s.db.ExecContext(ctx, dropDDL); err != nil {
			return fmt.Errorf("migrate: drop: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return s.SetMeta(ctx, "schema_version", SchemaVersion)
}

// Meta returns a metadata value, or "" when unset.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("meta %s: %w", key, err)
	}
	return v, nil
}

// SetMeta stores a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

const metadataDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key    TEXT PRIMARY KEY,
  value  TEXT NOT NULL
);
`

const dropDDL = `
DROP TABLE IF EXISTS edges;
DROP TABLE IF EXISTS imports;
DROP TABLE IF EXISTS symbols;
DROP TABLE IF EXISTS files;
DROP TABLE IF EXISTS commits;
`

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  module          TEXT NOT NULL,
  hash            TEXT NOT NULL,
  size            INTEGER NOT NULL,
  line_count      INTEGER NOT NULL,
  parse_errors    INTEGER NOT NULL DEFAULT 0,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  qualified_name  TEXT NOT NULL,
  kind            TEXT NOT NULL,
  variant         TEXT,
  exported        BOOLEAN DEFAULT FALSE,
  parent          TEXT,
  start_byte      INTEGER,
  end_byte        INTEGER,
  start_line      INTEGER,
  end_line        INTEGER
);

CREATE TABLE IF NOT EXISTS imports (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  module          TEXT NOT NULL,
  imported_name   TEXT,
  local_alias     TEXT,
  resolved_path   TEXT,
  is_module       BOOLEAN DEFAULT FALSE,
  re_export       BOOLEAN DEFAULT FALSE,
  line            INTEGER
);

CREATE TABLE IF NOT EXISTS edges (
  id              INTEGER PRIMARY KEY,
  from_path       TEXT NOT NULL,
  from_name       TEXT NOT NULL,
  to_path         TEXT NOT NULL,
  to_name         TEXT NOT NULL,
  via_name        TEXT,
  kind            TEXT NOT NULL,
  site_start      INTEGER,
  site_end        INTEGER,
  line            INTEGER
);

CREATE TABLE IF NOT EXISTS commits (
  id              TEXT PRIMARY KEY,
  committed_at    TIMESTAMP NOT NULL,
  files           INTEGER NOT NULL,
  relinked        INTEGER NOT NULL,
  paths           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_qualified ON symbols(qualified_name);
CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id);
CREATE INDEX IF NOT EXISTS idx_imports_resolved ON imports(resolved_path);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_path, from_name);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_path, to_name);
`
