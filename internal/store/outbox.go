package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// Enqueue upserts the pending op for op.NoteID, stamping it with the current
// time. A later op for the same note replaces the earlier one.
func (db *DB) Enqueue(op models.SyncQueueOp) (models.SyncQueueOp, error) {
	op.Timestamp = db.now().UTC()
	_, err := db.conn.Exec(`
		INSERT INTO outbox (note_id, action, ts, remote_event_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			action          = excluded.action,
			ts              = excluded.ts,
			remote_event_id = excluded.remote_event_id
	`, op.NoteID, string(op.Action), op.Timestamp.UnixNano(), op.RemoteEventID)
	if err != nil {
		return models.SyncQueueOp{}, apperr.Storage("store: enqueue", err)
	}
	return op, nil
}

// PendingOp returns the queued op for noteID.
func (db *DB) PendingOp(noteID string) (models.SyncQueueOp, error) {
	var (
		op     models.SyncQueueOp
		action string
		ts     int64
	)
	err := db.conn.QueryRow(`SELECT note_id, action, ts, remote_event_id FROM outbox WHERE note_id = ?`, noteID).
		Scan(&op.NoteID, &action, &ts, &op.RemoteEventID)
	if err != nil {
		return models.SyncQueueOp{}, notFound("store: pending op "+noteID, err)
	}
	op.Action = models.Action(action)
	op.Timestamp = fromNanos(ts)
	return op, nil
}

// ListPending returns queued ops, oldest first.
func (db *DB) ListPending() ([]models.SyncQueueOp, error) {
	rows, err := db.conn.Query(`SELECT note_id, action, ts, remote_event_id FROM outbox ORDER BY ts ASC, note_id ASC`)
	if err != nil {
		return nil, apperr.Storage("store: list pending", err)
	}
	defer rows.Close()

	var out []models.SyncQueueOp
	for rows.Next() {
		var (
			op     models.SyncQueueOp
			action string
			ts     int64
		)
		if err := rows.Scan(&op.NoteID, &action, &ts, &op.RemoteEventID); err != nil {
			return nil, apperr.Storage("store: scan op", err)
		}
		op.Action = models.Action(action)
		op.Timestamp = fromNanos(ts)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store: list pending", err)
	}
	return out, nil
}

// RemoveOp drops the queued op for noteID.
func (db *DB) RemoveOp(noteID string) error {
	if _, err := db.conn.Exec(`DELETE FROM outbox WHERE note_id = ?`, noteID); err != nil {
		return apperr.Storage("store: remove op", err)
	}
	return nil
}

// RemoveOpIfUnchanged drops the op for noteID only when it still carries ts.
// It reports whether a row was removed; an op re-enqueued after ts survives.
func (db *DB) RemoveOpIfUnchanged(noteID string, ts time.Time) (bool, error) {
	res, err := db.conn.Exec(`DELETE FROM outbox WHERE note_id = ? AND ts = ?`, noteID, ts.UnixNano())
	if err != nil {
		return false, apperr.Storage("store: remove op", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage("store: remove op", err)
	}
	return n > 0, nil
}

// ClearOutbox drops every queued op.
func (db *DB) ClearOutbox() error {
	if _, err := db.conn.Exec(`DELETE FROM outbox`); err != nil {
		return apperr.Storage("store: clear outbox", err)
	}
	return nil
}

// HasPendingOp reports whether noteID has a queued op.
func (db *DB) HasPendingOp(noteID string) (bool, error) {
	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM outbox WHERE note_id = ?`, noteID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("store: has pending op", err)
	}
	return true, nil
}
