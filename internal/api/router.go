package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/relaynote/internal/noteservice"
	"github.com/starford/relaynote/internal/syncer"
	"github.com/starford/relaynote/internal/vault"
)

// SyncController starts sync passes and reports their state.
type SyncController interface {
	Trigger(opts syncer.PassOptions)
	Status() syncer.Status
}

// VaultImporter re-imports the Markdown vault on demand.
type VaultImporter interface {
	Sync(ctx context.Context) (vault.Result, error)
}

// Deps are the components the API serves. Sync, Vault and Events are optional.
type Deps struct {
	Notes  *noteservice.Service
	Sync   SyncController
	Vault  VaultImporter
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// The SSE handler, if set, is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Put("/notes/{id}/folder", h.MoveNote)
	r.Get("/notes/{id}/matches", h.NoteMatches)
	r.Get("/notes/{id}/similar", h.SimilarNotes)

	// Search.
	r.Get("/search", h.Search)

	// Folders.
	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)
	r.Patch("/folders/{id}", h.UpdateFolder)
	r.Delete("/folders/{id}", h.DeleteFolder)

	// Ontology.
	r.Get("/ontology", h.GetOntology)
	r.Post("/ontology/nodes", h.AddOntologyNode)
	r.Patch("/ontology/nodes/{id}", h.UpdateOntologyNode)
	r.Delete("/ontology/nodes/{id}", h.RemoveOntologyNode)

	// Templates.
	r.Get("/templates", h.ListTemplates)
	r.Post("/templates", h.CreateTemplate)
	r.Get("/templates/{id}", h.GetTemplate)
	r.Put("/templates/{id}", h.UpdateTemplate)
	r.Delete("/templates/{id}", h.DeleteTemplate)
	r.Post("/templates/{id}/notes", h.CreateNoteFromTemplate)

	// Contacts.
	r.Get("/contacts", h.ListContacts)
	r.Post("/contacts", h.AddContact)
	r.Delete("/contacts/{pubkey}", h.RemoveContact)

	// Sync.
	r.Post("/sync", h.TriggerSync)
	r.Get("/sync/status", h.SyncStatus)

	if deps.Vault != nil {
		r.Post("/vault/import", h.ImportVault)
	}

	// SSE endpoint (protected by same auth middleware).
	if deps.Events != nil {
		r.Get("/events", deps.Events.ServeHTTP)
	}

	return r
}
