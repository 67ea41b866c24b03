package relay

import (
	"encoding/json"
	"time"

	"github.com/starford/relaynote/internal/models"
)

// Wire method names.
const (
	MethodPing            = "ping"
	MethodPublishNote     = "publish_note"
	MethodPublishDeletion = "publish_deletion"
	MethodPublishOntology = "publish_ontology"
	MethodPublishContacts = "publish_contacts"
	MethodFetchNotes      = "fetch_notes"
	MethodFetchOntology   = "fetch_ontology"
	MethodFetchContacts   = "fetch_contacts"
	MethodFetchDeletions  = "fetch_deletions"
)

// request is one JSON message sent to a relay.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response answers the request with the same id.
type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type publishNoteParams struct {
	Author string      `json:"author"`
	Note   models.Note `json:"note"`
}

type publishDeletionParams struct {
	Author   string `json:"author"`
	RemoteID string `json:"remote_id"`
}

type publishOntologyParams struct {
	Author string               `json:"author"`
	Tree   *models.OntologyTree `json:"tree"`
}

type publishContactsParams struct {
	Author   string           `json:"author"`
	Contacts []models.Contact `json:"contacts"`
}

type fetchParams struct {
	Author string    `json:"author,omitempty"`
	Since  time.Time `json:"since"`
}

type eventIDResult struct {
	EventID string `json:"event_id"`
}
