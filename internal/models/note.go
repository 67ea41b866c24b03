// Package models defines the domain types for relaynote.
package models

import (
	"strings"
	"time"
)

// Status is the publication state of a note.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusPrivate   Status = "private"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusPrivate:
		return true
	}
	return false
}

// Note is the unit of content that is stored locally and synced to relays.
type Note struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Tags         []string  `json:"tags"`
	Values       Attrs     `json:"values,omitempty"`
	Fields       Attrs     `json:"fields,omitempty"`
	Status       Status    `json:"status"`
	FolderID     string    `json:"folder_id,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
	RemoteSyncID string    `json:"remote_sync_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsPrivate reports whether the note must stay off the relay network.
func (n *Note) IsPrivate() bool {
	return n.Status == StatusPrivate
}

// Version returns the last-write-wins timestamp.
func (n Note) Version() time.Time {
	return n.UpdatedAt
}

// HasTag reports whether the note carries tag, ignoring case.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of n.
func (n Note) Clone() Note {
	c := n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	c.Values = n.Values.Clone()
	c.Fields = n.Fields.Clone()
	if n.Embedding != nil {
		c.Embedding = append([]float32(nil), n.Embedding...)
	}
	return c
}
