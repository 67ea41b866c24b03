package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/starford/relaynote/internal/apperr"
)

// Well-known sync flag keys.
const (
	FlagOntologyNeedsSync = "ontology_needs_sync"
	FlagLastSyncAt        = "last_sync_at"
)

// SetFlag stores value under key.
func (db *DB) SetFlag(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_flags (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return apperr.Storage("store: set flag "+key, err)
	}
	return nil
}

// Flag returns the value stored under key, or "" when unset.
func (db *DB) Flag(key string) (string, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM sync_flags WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Storage("store: get flag "+key, err)
	}
	return v, nil
}

// DeleteFlag removes key.
func (db *DB) DeleteFlag(key string) error {
	if _, err := db.conn.Exec(`DELETE FROM sync_flags WHERE key = ?`, key); err != nil {
		return apperr.Storage("store: delete flag "+key, err)
	}
	return nil
}

// FlagsWithPrefix returns every flag whose key starts with prefix.
func (db *DB) FlagsWithPrefix(prefix string) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT key, value FROM sync_flags WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return nil, apperr.Storage("store: flags by prefix", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, apperr.Storage("store: scan flag", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// OntologyNeedsSync reports whether local ontology edits are unpublished.
func (db *DB) OntologyNeedsSync() (bool, error) {
	v, err := db.Flag(FlagOntologyNeedsSync)
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SetOntologyNeedsSync sets or clears the unpublished ontology marker.
func (db *DB) SetOntologyNeedsSync(needs bool) error {
	if needs {
		return db.SetFlag(FlagOntologyNeedsSync, "1")
	}
	return db.DeleteFlag(FlagOntologyNeedsSync)
}

// LastSyncAt returns the start time of the last successful pass, or the
// zero time before the first one.
func (db *DB) LastSyncAt() (time.Time, error) {
	v, err := db.Flag(FlagLastSyncAt)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, apperr.Storage("store: parse last sync", err)
	}
	return fromNanos(n), nil
}

// SetLastSyncAt records the start time of a successful pass.
func (db *DB) SetLastSyncAt(t time.Time) error {
	return db.SetFlag(FlagLastSyncAt, strconv.FormatInt(toNanos(t), 10))
}
