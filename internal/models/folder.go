package models

import "time"

// Folder groups notes and other folders into a tree.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	Children  []string  `json:"children"`
	NoteIDs   []string  `json:"note_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Template is a reusable note skeleton.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Fields    Attrs     `json:"fields,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contact is a known peer identified by public key.
type Contact struct {
	PubKey  string    `json:"pubkey"`
	Alias   string    `json:"alias,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
