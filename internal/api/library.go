package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListTemplates handles GET /api/templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.svc.ListTemplates(r.Context())
	if err != nil {
		writeError(w, "list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": tpls})
}

// GetTemplate handles GET /api/templates/{id}.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.svc.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get template", err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// CreateTemplate handles POST /api/templates.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tpl, err := h.svc.CreateTemplate(r.Context(), req)
	if err != nil {
		writeError(w, "create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// UpdateTemplate handles PUT /api/templates/{id}.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tpl, err := h.svc.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update template", err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// DeleteTemplate handles DELETE /api/templates/{id}.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNoteFromTemplate handles POST /api/templates/{id}/notes.
//
//	@Summary		Create a note seeded from a template
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Template id"
//	@Param			body	body		NoteRequest	false	"Overrides"
//	@Success		201		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{id}/notes [post]
func (h *Handler) CreateNoteFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNoteFromTemplate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "create note from template", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ListContacts handles GET /api/contacts.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.svc.ListContacts(r.Context())
	if err != nil {
		writeError(w, "list contacts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

// AddContact handles POST /api/contacts.
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.AddContact(r.Context(), req.PubKey, req.Alias)
	if err != nil {
		writeError(w, "add contact", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// RemoveContact handles DELETE /api/contacts/{pubkey}.
func (h *Handler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveContact(r.Context(), chi.URLParam(r, "pubkey")); err != nil {
		writeError(w, "remove contact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
