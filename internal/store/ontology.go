package store

import (
	"encoding/json"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// SaveOntology replaces the ontology singleton.
func (db *DB) SaveOntology(tree *models.OntologyTree) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return apperr.Storage("store: encode ontology", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO ontology (singleton, updated_at, data) VALUES (1, ?, ?)
		ON CONFLICT(singleton) DO UPDATE SET updated_at = excluded.updated_at, data = excluded.data
	`, toNanos(tree.UpdatedAt), string(data))
	if err != nil {
		return apperr.Storage("store: save ontology", err)
	}
	return nil
}

// GetOntology returns the stored ontology or apperr.ErrNotFound when none
// has been saved yet.
func (db *DB) GetOntology() (*models.OntologyTree, error) {
	var data string
	if err := db.conn.QueryRow(`SELECT data FROM ontology WHERE singleton = 1`).Scan(&data); err != nil {
		return nil, notFound("store: get ontology", err)
	}
	tree := models.NewOntologyTree()
	if err := json.Unmarshal([]byte(data), tree); err != nil {
		return nil, apperr.Storage("store: decode ontology", err)
	}
	if tree.Nodes == nil {
		tree.Nodes = make(map[string]*models.OntologyNode)
	}
	return tree, nil
}
