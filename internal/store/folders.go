package store

import (
	"encoding/json"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// SaveFolder inserts or replaces a folder.
func (db *DB) SaveFolder(f models.Folder) error {
	data, err := json.Marshal(f)
	if err != nil {
		return apperr.Storage("store: encode folder", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO folders (id, name, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data
	`, f.ID, f.Name, string(data))
	if err != nil {
		return apperr.Storage("store: save folder", err)
	}
	return nil
}

// SaveFolders writes several folders in one transaction. Folder moves touch
// up to three folders and must not be observed half-applied.
func (db *DB) SaveFolders(folders ...models.Folder) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return apperr.Storage("store: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT INTO folders (id, name, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data
	`)
	if err != nil {
		return apperr.Storage("store: prepare folder upsert", err)
	}
	defer stmt.Close()

	for _, f := range folders {
		data, err := json.Marshal(f)
		if err != nil {
			return apperr.Storage("store: encode folder", err)
		}
		if _, err := stmt.Exec(f.ID, f.Name, string(data)); err != nil {
			return apperr.Storage("store: save folder", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage("store: commit", err)
	}
	return nil
}

// GetFolder returns the folder with the given id.
func (db *DB) GetFolder(id string) (models.Folder, error) {
	var data string
	if err := db.conn.QueryRow(`SELECT data FROM folders WHERE id = ?`, id).Scan(&data); err != nil {
		return models.Folder{}, notFound("store: get folder "+id, err)
	}
	var f models.Folder
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return models.Folder{}, apperr.Storage("store: decode folder", err)
	}
	return f, nil
}

// ListFolders returns every folder ordered by name.
func (db *DB) ListFolders() ([]models.Folder, error) {
	rows, err := db.conn.Query(`SELECT data FROM folders ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, apperr.Storage("store: list folders", err)
	}
	defer rows.Close()

	var out []models.Folder
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperr.Storage("store: scan folder", err)
		}
		var f models.Folder
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, apperr.Storage("store: decode folder", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store: list folders", err)
	}
	return out, nil
}

// DeleteFolder removes a folder.
func (db *DB) DeleteFolder(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM folders WHERE id = ?`, id); err != nil {
		return apperr.Storage("store: delete folder", err)
	}
	return nil
}
