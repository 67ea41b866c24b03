package store

import (
	"encoding/json"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// SaveMatch stores m unless a match for the same local note, target author,
// target note and type already exists with an equal or higher similarity. It reports
// whether m was written.
func (db *DB) SaveMatch(m models.Match) (bool, error) {
	tags, err := json.Marshal(nonNil(m.SharedTags))
	if err != nil {
		return false, apperr.Storage("store: encode shared tags", err)
	}
	res, err := db.conn.Exec(`
		INSERT INTO matches (id, local_note_id, target_note_id, target_author, similarity, shared_tags, ts, match_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_note_id, target_author, target_note_id, match_type) DO UPDATE SET
			similarity    = excluded.similarity,
			shared_tags   = excluded.shared_tags,
			ts            = excluded.ts
		WHERE excluded.similarity > matches.similarity
	`, m.ID, m.LocalNoteID, m.TargetNoteID, m.TargetAuthor, m.Similarity, string(tags), toNanos(m.Timestamp), string(m.MatchType))
	if err != nil {
		return false, apperr.Storage("store: save match", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage("store: save match", err)
	}
	return n > 0, nil
}

// ListMatches returns the matches of a local note, most similar first.
func (db *DB) ListMatches(localNoteID string) ([]models.Match, error) {
	return db.queryMatches(`
		SELECT id, local_note_id, target_note_id, target_author, similarity, shared_tags, ts, match_type
		FROM matches WHERE local_note_id = ?
		ORDER BY similarity DESC, ts DESC, target_author ASC, target_note_id ASC`, localNoteID)
}

// ListAllMatches returns every stored match, most similar first.
func (db *DB) ListAllMatches() ([]models.Match, error) {
	return db.queryMatches(`
		SELECT id, local_note_id, target_note_id, target_author, similarity, shared_tags, ts, match_type
		FROM matches ORDER BY similarity DESC, ts DESC, target_author ASC, target_note_id ASC`)
}

// DeleteMatchesForNote removes every match of a local note.
func (db *DB) DeleteMatchesForNote(localNoteID string) error {
	if _, err := db.conn.Exec(`DELETE FROM matches WHERE local_note_id = ?`, localNoteID); err != nil {
		return apperr.Storage("store: delete matches", err)
	}
	return nil
}

// PruneMatches keeps only the keep most similar matches of a local note.
func (db *DB) PruneMatches(localNoteID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := db.conn.Exec(`
		DELETE FROM matches WHERE local_note_id = ? AND rowid NOT IN (
			SELECT rowid FROM matches WHERE local_note_id = ?
			ORDER BY similarity DESC, ts DESC, target_author ASC, target_note_id ASC
			LIMIT ?
		)`, localNoteID, localNoteID, keep)
	if err != nil {
		return apperr.Storage("store: prune matches", err)
	}
	return nil
}

func (db *DB) queryMatches(query string, args ...any) ([]models.Match, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, apperr.Storage("store: list matches", err)
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		var (
			m         models.Match
			tagsJSON  string
			ts        int64
			matchType string
		)
		if err := rows.Scan(&m.ID, &m.LocalNoteID, &m.TargetNoteID, &m.TargetAuthor, &m.Similarity, &tagsJSON, &ts, &matchType); err != nil {
			return nil, apperr.Storage("store: scan match", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &m.SharedTags); err != nil {
			return nil, apperr.Storage("store: decode shared tags", err)
		}
		m.Timestamp = fromNanos(ts)
		m.MatchType = models.MatchType(matchType)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store: list matches", err)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
