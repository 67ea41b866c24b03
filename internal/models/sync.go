package models

import "time"

// Action is the kind of pending outbox operation.
type Action string

const (
	ActionSave   Action = "save"
	ActionDelete Action = "delete"
)

// SyncQueueOp is a local mutation awaiting delivery. At most one exists per note.
type SyncQueueOp struct {
	NoteID        string    `json:"note_id"`
	Action        Action    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
	RemoteEventID string    `json:"remote_event_id,omitempty"`
}

// MatchType is the signal a match was derived from.
type MatchType string

const (
	MatchTag       MatchType = "tag"
	MatchEmbedding MatchType = "embedding"
)

// MaxSharedTags bounds Match.SharedTags.
const MaxSharedTags = 5

// Match links a local note to a related remote note.
type Match struct {
	ID           string    `json:"id"`
	LocalNoteID  string    `json:"local_note_id"`
	TargetNoteID string    `json:"target_note_id"`
	TargetAuthor string    `json:"target_author"`
	Similarity   float64   `json:"similarity"`
	SharedTags   []string  `json:"shared_tags"`
	Timestamp    time.Time `json:"timestamp"`
	MatchType    MatchType `json:"match_type"`
}
