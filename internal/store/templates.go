package store

import (
	"encoding/json"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// SaveTemplate inserts or replaces a template.
func (db *DB) SaveTemplate(tpl models.Template) error {
	data, err := json.Marshal(tpl)
	if err != nil {
		return apperr.Storage("store: encode template", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO templates (id, name, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data
	`, tpl.ID, tpl.Name, string(data))
	if err != nil {
		return apperr.Storage("store: save template", err)
	}
	return nil
}

// GetTemplate returns the template with the given id.
func (db *DB) GetTemplate(id string) (models.Template, error) {
	var data string
	if err := db.conn.QueryRow(`SELECT data FROM templates WHERE id = ?`, id).Scan(&data); err != nil {
		return models.Template{}, notFound("store: get template "+id, err)
	}
	var tpl models.Template
	if err := json.Unmarshal([]byte(data), &tpl); err != nil {
		return models.Template{}, apperr.Storage("store: decode template", err)
	}
	return tpl, nil
}

// ListTemplates returns every template ordered by name.
func (db *DB) ListTemplates() ([]models.Template, error) {
	rows, err := db.conn.Query(`SELECT data FROM templates ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, apperr.Storage("store: list templates", err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperr.Storage("store: scan template", err)
		}
		var tpl models.Template
		if err := json.Unmarshal([]byte(data), &tpl); err != nil {
			return nil, apperr.Storage("store: decode template", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store: list templates", err)
	}
	return out, nil
}

// DeleteTemplate removes a template.
func (db *DB) DeleteTemplate(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM templates WHERE id = ?`, id); err != nil {
		return apperr.Storage("store: delete template", err)
	}
	return nil
}

// SaveContact inserts or replaces a contact keyed by public key.
func (db *DB) SaveContact(c models.Contact) error {
	data, err := json.Marshal(c)
	if err != nil {
		return apperr.Storage("store: encode contact", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO contacts (pubkey, added_at, data) VALUES (?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET data = excluded.data
	`, c.PubKey, toNanos(c.AddedAt), string(data))
	if err != nil {
		return apperr.Storage("store: save contact", err)
	}
	return nil
}

// ListContacts returns every contact in the order they were added.
func (db *DB) ListContacts() ([]models.Contact, error) {
	rows, err := db.conn.Query(`SELECT data FROM contacts ORDER BY added_at ASC, pubkey ASC`)
	if err != nil {
		return nil, apperr.Storage("store: list contacts", err)
	}
	defer rows.Close()

	var out []models.Contact
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperr.Storage("store: scan contact", err)
		}
		var c models.Contact
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, apperr.Storage("store: decode contact", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store: list contacts", err)
	}
	return out, nil
}

// DeleteContact removes a contact.
func (db *DB) DeleteContact(pubkey string) error {
	if _, err := db.conn.Exec(`DELETE FROM contacts WHERE pubkey = ?`, pubkey); err != nil {
		return apperr.Storage("store: delete contact", err)
	}
	return nil
}
