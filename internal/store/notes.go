package store

import (
	"encoding/json"
	"fmt"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// SaveNote inserts or replaces a note.
func (db *DB) SaveNote(n models.Note) error {
	data, err := json.Marshal(n)
	if err != nil {
		return apperr.Storage("store: encode note", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO notes (id, remote_sync_id, updated_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_sync_id = excluded.remote_sync_id,
			updated_at     = excluded.updated_at,
			data           = excluded.data
	`, n.ID, n.RemoteSyncID, toNanos(n.UpdatedAt), string(data))
	if err != nil {
		return apperr.Storage("store: save note", err)
	}
	return nil
}

// GetNote returns the note with the given id.
func (db *DB) GetNote(id string) (models.Note, error) {
	var data string
	if err := db.conn.QueryRow(`SELECT data FROM notes WHERE id = ?`, id).Scan(&data); err != nil {
		return models.Note{}, notFound("store: get note "+id, err)
	}
	return decodeNote(data)
}

// ListNotes returns every note, most recently updated first.
func (db *DB) ListNotes() ([]models.Note, error) {
	rows, err := db.conn.Query(`SELECT data FROM notes ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, apperr.Storage("store: list notes", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperr.Storage("store: scan note", err)
		}
		n, err := decodeNote(data)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store: list notes", err)
	}
	return out, nil
}

// DeleteNote removes a note. Deleting a missing note is not an error.
func (db *DB) DeleteNote(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return apperr.Storage("store: delete note", err)
	}
	return nil
}

// FindNoteByRemoteID returns the note whose remote sync id equals remoteID.
func (db *DB) FindNoteByRemoteID(remoteID string) (models.Note, error) {
	if remoteID == "" {
		return models.Note{}, fmt.Errorf("store: find by remote id: %w", apperr.ErrNotFound)
	}
	var data string
	err := db.conn.QueryRow(`SELECT data FROM notes WHERE remote_sync_id = ? LIMIT 1`, remoteID).Scan(&data)
	if err != nil {
		return models.Note{}, notFound("store: find by remote id "+remoteID, err)
	}
	return decodeNote(data)
}

// SetRemoteSyncID records the relay event id of a note without touching
// any other field, updatedAt included.
func (db *DB) SetRemoteSyncID(noteID, remoteID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return apperr.Storage("store: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var data string
	if err := tx.QueryRow(`SELECT data FROM notes WHERE id = ?`, noteID).Scan(&data); err != nil {
		return notFound("store: set remote id "+noteID, err)
	}
	n, err := decodeNote(data)
	if err != nil {
		return err
	}
	n.RemoteSyncID = remoteID
	enc, err := json.Marshal(n)
	if err != nil {
		return apperr.Storage("store: encode note", err)
	}
	if _, err := tx.Exec(`UPDATE notes SET remote_sync_id = ?, data = ? WHERE id = ?`, remoteID, string(enc), noteID); err != nil {
		return apperr.Storage("store: set remote id", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage("store: commit", err)
	}
	return nil
}

func decodeNote(data string) (models.Note, error) {
	var n models.Note
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return models.Note{}, apperr.Storage("store: decode note", err)
	}
	return n, nil
}
