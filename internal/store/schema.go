// Package store provides the SQLite-backed persistent store: one collection per
// entity type, the sync outbox, sync flags, and derived matches.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/relaynote/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id             TEXT PRIMARY KEY,
	remote_sync_id TEXT NOT NULL DEFAULT '',
	updated_at     INTEGER NOT NULL,
	data           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_notes_remote ON notes(remote_sync_id);

CREATE TABLE IF NOT EXISTS folders (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ontology (
	singleton  INTEGER PRIMARY KEY CHECK (singleton = 1),
	updated_at INTEGER NOT NULL,
	data       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS templates (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	pubkey   TEXT PRIMARY KEY,
	added_at INTEGER NOT NULL,
	data     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	note_id         TEXT PRIMARY KEY,
	action          TEXT NOT NULL,
	ts              INTEGER NOT NULL,
	remote_event_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_flags (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
	id             TEXT NOT NULL,
	local_note_id  TEXT NOT NULL,
	target_note_id TEXT NOT NULL,
	target_author  TEXT NOT NULL DEFAULT '',
	similarity     REAL NOT NULL,
	shared_tags    TEXT NOT NULL DEFAULT '[]',
	ts             INTEGER NOT NULL,
	match_type     TEXT NOT NULL,
	UNIQUE(local_note_id, target_author, target_note_id, match_type)
);
CREATE INDEX IF NOT EXISTS idx_matches_local ON matches(local_note_id);
`

// DB wraps a sql.DB with the collection operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used to stamp outbox ops.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	db := &DB{conn: conn, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// notFound maps sql.ErrNoRows to apperr.ErrNotFound and anything else to a
// storage error.
func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return apperr.Storage(op, err)
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
