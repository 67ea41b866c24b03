// Package relay talks to the relay network: it publishes signed-by-author
// events for notes, deletions, the ontology, and the contact list, and fetches
// them back.
package relay

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/relaynote/internal/checksum"
	"github.com/starford/relaynote/internal/models"
)

// Event kinds.
const (
	KindNote     = "note"
	KindDeletion = "deletion"
	KindOntology = "ontology"
	KindContacts = "contacts"
)

// Client publishes and fetches events. Implementations wrap failures with
// apperr.ErrTransport.
type Client interface {
	PublishNote(ctx context.Context, author string, note models.Note) (string, error)
	PublishDeletion(ctx context.Context, author, remoteID string) (string, error)
	PublishOntology(ctx context.Context, author string, tree *models.OntologyTree) (string, error)
	PublishContactList(ctx context.Context, author string, contacts []models.Contact) (string, error)
	FetchNotesSince(ctx context.Context, since time.Time) ([]RemoteNote, error)
	// FetchOntology returns nil when author has never published one.
	FetchOntology(ctx context.Context, author string) (*RemoteOntology, error)
	// FetchContacts returns nil when author has never published a list.
	FetchContacts(ctx context.Context, author string) (*ContactList, error)
	FetchDeletionsSince(ctx context.Context, author string, since time.Time) ([]Deletion, error)
}

// Pinger is implemented by clients that can probe their relay.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RemoteNote is a note event as stored on a relay. The note's embedding
// travels separately as an encoded tag.
type RemoteNote struct {
	EventID      string      `json:"event_id"`
	Author       string      `json:"author"`
	PublishedAt  time.Time   `json:"published_at"`
	Note         models.Note `json:"note"`
	EmbeddingTag string      `json:"embedding,omitempty"`
}

// Validate checks the fields the sync engine relies on.
func (r RemoteNote) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EventID, validation.Required),
		validation.Field(&r.Note, validation.By(validateNote)),
	)
}

func validateNote(v interface{}) error {
	n, _ := v.(models.Note)
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.UpdatedAt, validation.Required),
		validation.Field(&n.Status, validation.In(models.StatusDraft, models.StatusPublished, models.StatusPrivate)),
	)
}

// RemoteOntology is the latest ontology event of an author.
type RemoteOntology struct {
	EventID     string               `json:"event_id"`
	Author      string               `json:"author"`
	PublishedAt time.Time            `json:"published_at"`
	Tree        *models.OntologyTree `json:"tree"`
}

// Validate checks the tree is present.
func (r RemoteOntology) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EventID, validation.Required),
		validation.Field(&r.Tree, validation.NotNil),
	)
}

// ContactList is the latest contact-list event of an author.
type ContactList struct {
	EventID     string           `json:"event_id"`
	Author      string           `json:"author"`
	PublishedAt time.Time        `json:"published_at"`
	Contacts    []models.Contact `json:"contacts"`
}

// Deletion is a tombstone referencing a previously published event.
type Deletion struct {
	EventID     string    `json:"event_id"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"published_at"`
	RemoteID    string    `json:"remote_id"`
}

// Validate checks the tombstone references something.
func (d Deletion) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.EventID, validation.Required),
		validation.Field(&d.RemoteID, validation.Required),
	)
}

// NoteEventID returns the id of the event publishing this version of note.
// Relays given the same version agree on the id.
func NoteEventID(author string, note models.Note) string {
	return checksum.Parts(KindNote, author, note.ID, strconv.FormatInt(note.UpdatedAt.UnixNano(), 10))
}

// DeletionEventID returns the id of the tombstone for remoteID.
func DeletionEventID(author, remoteID string) string {
	return checksum.Parts(KindDeletion, author, remoteID)
}

// OntologyEventID returns the id of the event publishing this version of tree.
func OntologyEventID(author string, tree *models.OntologyTree) string {
	return checksum.Parts(KindOntology, author, strconv.FormatInt(tree.UpdatedAt.UnixNano(), 10))
}

// ContactsEventID returns the id of the event publishing contacts.
func ContactsEventID(author string, contacts []models.Contact) string {
	data, _ := json.Marshal(contacts)
	return checksum.Parts(KindContacts, author, string(data))
}
