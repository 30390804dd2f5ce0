// Package store provides the SQLite event store for nexus-router.
//
// The store is an append-only log of run events with a per-run, gap-free,
// monotonic sequence. It has a single writer per run_id (the router) and
// any number of concurrent readers. The database runs in WAL journal mode
// for crash-consistent appends.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/canonical"
	"github.com/mcp-tool-shop/nexus-router/internal/telemetry"
)

// MemoryPath denotes an ephemeral store.
const MemoryPath = ":memory:"

// tsFormat is the stored timestamp layout: UTC, millisecond precision.
const tsFormat = "2006-01-02T15:04:05.000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  run_id     TEXT PRIMARY KEY,
  goal       TEXT NOT NULL,
  mode       TEXT NOT NULL,
  status     TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
  event_id     TEXT PRIMARY KEY,
  run_id       TEXT NOT NULL REFERENCES runs(run_id),
  seq          INTEGER NOT NULL,
  type         TEXT NOT NULL,
  ts           TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  UNIQUE(run_id, seq)
);

CREATE INDEX IF NOT EXISTS ix_events_run ON events(run_id);
`

// Store wraps a SQLite database holding runs and their events.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	instr  *telemetry.Instruments
	now    func() time.Time
}

// Open opens (creating if needed) the event store at path. Path ":memory:"
// is ephemeral. instr may be nil.
func Open(path string, logger *slog.Logger, instr *telemetry.Instruments) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = MemoryPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// every statement sees the same data. File-backed stores keep a small
	// pool for concurrent readers.
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	s := &Store{db: db, path: path, logger: logger, instr: instr, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("store: %s: %w", strings.ToLower(pragma), err)
		}
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Now returns the current store timestamp string.
func (s *Store) Now() string {
	return s.now().UTC().Format(tsFormat)
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. modernc.org/sqlite surfaces these as extended result code 2067
// (SQLITE_CONSTRAINT_UNIQUE) or 1555 (SQLITE_CONSTRAINT_PRIMARYKEY) in the
// error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE") ||
		strings.Contains(msg, "(2067)") || strings.Contains(msg, "(1555)")
}

// allocEventID returns a fresh globally unique event id.
func allocEventID() string { return uuid.NewString() }

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("store: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// marshalPayload canonicalizes an event payload for persistence. Failures
// are bugs: nothing the router emits should be unserializable.
func marshalPayload(payload any) (string, error) {
	raw, err := canonical.MarshalPayload(payload)
	if err != nil {
		return "", fault.NewBug(fault.CodeBug, "canonicalize event payload").WithCause(err)
	}
	return string(raw), nil
}
