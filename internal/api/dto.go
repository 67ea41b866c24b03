package api

import (
	"github.com/starford/relaynote/internal/matcher"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/noteservice"
)

// NoteRequest is the request body for creating or updating a note.
type NoteRequest = noteservice.NoteInput

// TemplateRequest is the request body for creating or updating a template.
type TemplateRequest = noteservice.TemplateInput

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.Note `json:"results" validate:"required"`
}

// MatchListResponse wraps the matches of a note.
type MatchListResponse struct {
	Matches []models.Match `json:"matches" validate:"required"`
}

// SimilarResponse wraps embedding neighbours of a note.
type SimilarResponse struct {
	Results []matcher.Scored `json:"results" validate:"required"`
}

// MoveNoteRequest files a note under a folder; an empty id unfiles it.
type MoveNoteRequest struct {
	FolderID string `json:"folder_id" example:"3f0c..."`
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Name     string `json:"name" example:"Projects" validate:"required"`
	ParentID string `json:"parent_id,omitempty"`
}

// UpdateFolderRequest renames and/or reparents a folder. Absent fields are
// left unchanged; an empty parent_id moves the folder to the top level.
type UpdateFolderRequest struct {
	Name     *string `json:"name,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

// OntologyNodeRequest is the request body for adding an ontology tag.
type OntologyNodeRequest struct {
	ID       string                `json:"id,omitempty"`
	Label    string                `json:"label" example:"AI" validate:"required"`
	ParentID string                `json:"parent_id,omitempty"`
	Schema   []models.AttributeDef `json:"schema,omitempty"`
}

// UpdateOntologyNodeRequest relabels and/or reparents an ontology tag.
type UpdateOntologyNodeRequest struct {
	Label    *string `json:"label,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

// ContactRequest is the request body for adding a contact.
type ContactRequest struct {
	PubKey string `json:"pubkey" example:"npub1..." validate:"required"`
	Alias  string `json:"alias,omitempty" example:"Bob"`
}
