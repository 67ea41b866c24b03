package store

import (
	"time"

	"github.com/starford/relaynote/internal/models"
)

// Store defines the persistence operations used by the services.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Store interface {
	SaveNote(n models.Note) error
	GetNote(id string) (models.Note, error)
	ListNotes() ([]models.Note, error)
	DeleteNote(id string) error
	FindNoteByRemoteID(remoteID string) (models.Note, error)
	SetRemoteSyncID(noteID, remoteID string) error

	SaveFolder(f models.Folder) error
	SaveFolders(folders ...models.Folder) error
	GetFolder(id string) (models.Folder, error)
	ListFolders() ([]models.Folder, error)
	DeleteFolder(id string) error

	SaveOntology(tree *models.OntologyTree) error
	GetOntology() (*models.OntologyTree, error)

	SaveTemplate(tpl models.Template) error
	GetTemplate(id string) (models.Template, error)
	ListTemplates() ([]models.Template, error)
	DeleteTemplate(id string) error

	SaveContact(c models.Contact) error
	ListContacts() ([]models.Contact, error)
	DeleteContact(pubkey string) error

	Enqueue(op models.SyncQueueOp) (models.SyncQueueOp, error)
	PendingOp(noteID string) (models.SyncQueueOp, error)
	HasPendingOp(noteID string) (bool, error)
	ListPending() ([]models.SyncQueueOp, error)
	RemoveOp(noteID string) error
	RemoveOpIfUnchanged(noteID string, ts time.Time) (bool, error)
	ClearOutbox() error

	SetFlag(key, value string) error
	Flag(key string) (string, error)
	DeleteFlag(key string) error
	FlagsWithPrefix(prefix string) (map[string]string, error)
	OntologyNeedsSync() (bool, error)
	SetOntologyNeedsSync(needs bool) error
	LastSyncAt() (time.Time, error)
	SetLastSyncAt(t time.Time) error

	SaveMatch(m models.Match) (bool, error)
	ListMatches(localNoteID string) ([]models.Match, error)
	ListAllMatches() ([]models.Match, error)
	DeleteMatchesForNote(localNoteID string) error
	PruneMatches(localNoteID string, keep int) error

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
