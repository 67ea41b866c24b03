package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/relaynote/internal/models"
)

// ListFolders handles GET /api/folders.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.svc.ListFolders(r.Context())
	if err != nil {
		writeError(w, "list folders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFolderRequest	true	"Folder to create"
//	@Success		201		{object}	models.Folder
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.svc.CreateFolder(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// UpdateFolder handles PATCH /api/folders/{id}.
func (h *Handler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var req UpdateFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	f, err := h.svc.GetFolder(ctx, id)
	if req.Name != nil && err == nil {
		f, err = h.svc.RenameFolder(ctx, id, *req.Name)
	}
	if req.ParentID != nil && err == nil {
		f, err = h.svc.MoveFolder(ctx, id, *req.ParentID)
	}
	if err != nil {
		writeError(w, "update folder", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFolder handles DELETE /api/folders/{id}. Contents move to the parent.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFolder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOntology handles GET /api/ontology.
//
//	@Summary		The tag ontology
//	@Tags			ontology
//	@Produce		json
//	@Success		200	{object}	models.OntologyTree
//	@Security		BearerAuth
//	@Router			/ontology [get]
func (h *Handler) GetOntology(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.GetOntology(r.Context())
	if err != nil {
		writeError(w, "get ontology", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// AddOntologyNode handles POST /api/ontology/nodes.
func (h *Handler) AddOntologyNode(w http.ResponseWriter, r *http.Request) {
	var req OntologyNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tree, err := h.svc.AddOntologyNode(r.Context(), models.OntologyNode{
		ID:       req.ID,
		Label:    req.Label,
		ParentID: req.ParentID,
		Schema:   req.Schema,
	})
	if err != nil {
		writeError(w, "add ontology node", err)
		return
	}
	writeJSON(w, http.StatusCreated, tree)
}

// UpdateOntologyNode handles PATCH /api/ontology/nodes/{id}.
func (h *Handler) UpdateOntologyNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateOntologyNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	tree, err := h.svc.GetOntology(ctx)
	if req.Label != nil && err == nil {
		tree, err = h.svc.RenameOntologyNode(ctx, id, *req.Label)
	}
	if req.ParentID != nil && err == nil {
		tree, err = h.svc.MoveOntologyNode(ctx, id, *req.ParentID)
	}
	if err != nil {
		writeError(w, "update ontology node", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// RemoveOntologyNode handles DELETE /api/ontology/nodes/{id}.
func (h *Handler) RemoveOntologyNode(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.RemoveOntologyNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "remove ontology node", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}
