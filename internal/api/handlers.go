package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/noteservice"
	"github.com/starford/relaynote/internal/search"
)

// Handler holds API route handlers.
type Handler struct {
	svc   *noteservice.Service
	sync  SyncController
	vault VaultImporter
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{svc: deps.Notes, sync: deps.Sync, vault: deps.Vault}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recently updated first
//	@Tags			notes
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status"	Enums(draft, published, private)
//	@Param			folder	query		string	false	"Filter by folder id"
//	@Param			tag		query		string	false	"Filter by tag, expanded through the ontology"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.Search(r.Context(), "", filtersFrom(r))
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note and queue it for publication
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace the editable fields of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Note id"
//	@Param			body	body		NoteRequest	true	"Updated note"
//	@Success		200		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note and queue a deletion for its published copy
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNote handles PUT /api/notes/{id}/folder.
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	var req MoveNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.MoveNote(r.Context(), chi.URLParam(r, "id"), req.FolderID)
	if err != nil {
		writeError(w, "move note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// NoteMatches handles GET /api/notes/{id}/matches.
//
//	@Summary		Remote notes related to a local note
//	@Tags			matches
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	MatchListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/matches [get]
func (h *Handler) NoteMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.FindMatches(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "find matches", err)
		return
	}
	writeJSON(w, http.StatusOK, MatchListResponse{Matches: matches})
}

// SimilarNotes handles GET /api/notes/{id}/similar.
func (h *Handler) SimilarNotes(w http.ResponseWriter, r *http.Request) {
	scored, err := h.svc.SimilarNotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "similar notes", err)
		return
	}
	writeJSON(w, http.StatusOK, SimilarResponse{Results: scored})
}

// Search handles GET /api/search.
//
//	@Summary		Ranked search across local notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Search query; empty returns every note passing the filters"
//	@Param			status	query		string	false	"Filter by status"
//	@Param			folder	query		string	false	"Filter by folder id"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			key		query		string	false	"Attribute key"
//	@Param			value	query		string	false	"Attribute value substring"
//	@Success		200		{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"), filtersFrom(r))
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func filtersFrom(r *http.Request) search.Filters {
	q := r.URL.Query()
	return search.Filters{
		Status:   models.Status(q.Get("status")),
		FolderID: q.Get("folder"),
		Tag:      q.Get("tag"),
		Key:      q.Get("key"),
		Value:    q.Get("value"),
	}
}
