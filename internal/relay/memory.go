package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/embedding"
	"github.com/starford/relaynote/internal/models"
)

// ErrUnavailable is returned by a Memory relay that is switched offline.
var ErrUnavailable = errors.New("relay unavailable")

// Memory is an in-process relay. It backs the development relay server and
// stands in for the network in tests.
//
// Note events are replaceable per (author, note id): publishing a newer
// version replaces the stored one. Ontology and contact-list events are
// replaceable per author.
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	notes     map[string]RemoteNote // author + "/" + note id
	deletions []Deletion
	ontology  map[string]RemoteOntology
	contacts  map[string]ContactList
	failures  map[string]error
	offline   bool
}

// MemoryOption configures a Memory relay.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the clock used to stamp received events.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory returns an empty in-process relay.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:      time.Now,
		notes:    make(map[string]RemoteNote),
		ontology: make(map[string]RemoteOntology),
		contacts: make(map[string]ContactList),
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailOn makes every call of method fail with err until cleared with a nil err.
// Method names are the wire method names, e.g. "publish_note".
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// SetOffline makes every call, Ping included, fail.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// InjectNote stores a raw note event as-is, bypassing publication. Tests use
// it to plant events from other authors or malformed payloads.
func (m *Memory) InjectNote(rn RemoteNote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rn.PublishedAt.IsZero() {
		rn.PublishedAt = m.now().UTC()
	}
	m.notes[rn.Author+"/"+rn.Note.ID] = rn
}

// InjectDeletion stores a raw tombstone.
func (m *Memory) InjectDeletion(d Deletion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.PublishedAt.IsZero() {
		d.PublishedAt = m.now().UTC()
	}
	m.deletions = append(m.deletions, d)
}

// Notes returns every stored note event ordered by receive time.
func (m *Memory) Notes() []RemoteNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedNotes(time.Time{})
}

func (m *Memory) check(method string) error {
	if m.offline {
		return apperr.Transport("relay: "+method, ErrUnavailable)
	}
	if err, ok := m.failures[method]; ok {
		return apperr.Transport("relay: "+method, err)
	}
	return nil
}

// Ping fails when the relay is offline.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(MethodPing)
}

func (m *Memory) PublishNote(_ context.Context, author string, note models.Note) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodPublishNote); err != nil {
		return "", err
	}
	payload := note.Clone()
	tag := embedding.FormatVector(payload.Embedding)
	payload.Embedding = nil
	payload.RemoteSyncID = ""

	id := NoteEventID(author, note)
	m.notes[author+"/"+note.ID] = RemoteNote{
		EventID:      id,
		Author:       author,
		PublishedAt:  m.now().UTC(),
		Note:         payload,
		EmbeddingTag: tag,
	}
	return id, nil
}

func (m *Memory) PublishDeletion(_ context.Context, author, remoteID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodPublishDeletion); err != nil {
		return "", err
	}
	id := DeletionEventID(author, remoteID)
	for _, d := range m.deletions {
		if d.EventID == id {
			return id, nil
		}
	}
	for key, rn := range m.notes {
		if rn.Author == author && rn.EventID == remoteID {
			delete(m.notes, key)
		}
	}
	m.deletions = append(m.deletions, Deletion{
		EventID:     id,
		Author:      author,
		PublishedAt: m.now().UTC(),
		RemoteID:    remoteID,
	})
	return id, nil
}

func (m *Memory) PublishOntology(_ context.Context, author string, tree *models.OntologyTree) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodPublishOntology); err != nil {
		return "", err
	}
	id := OntologyEventID(author, tree)
	m.ontology[author] = RemoteOntology{
		EventID:     id,
		Author:      author,
		PublishedAt: m.now().UTC(),
		Tree:        tree.Clone(),
	}
	return id, nil
}

func (m *Memory) PublishContactList(_ context.Context, author string, contacts []models.Contact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodPublishContacts); err != nil {
		return "", err
	}
	id := ContactsEventID(author, contacts)
	m.contacts[author] = ContactList{
		EventID:     id,
		Author:      author,
		PublishedAt: m.now().UTC(),
		Contacts:    append([]models.Contact(nil), contacts...),
	}
	return id, nil
}

func (m *Memory) FetchNotesSince(_ context.Context, since time.Time) ([]RemoteNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodFetchNotes); err != nil {
		return nil, err
	}
	return m.sortedNotes(since), nil
}

func (m *Memory) FetchOntology(_ context.Context, author string) (*RemoteOntology, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodFetchOntology); err != nil {
		return nil, err
	}
	ro, ok := m.ontology[author]
	if !ok {
		return nil, nil
	}
	ro.Tree = ro.Tree.Clone()
	return &ro, nil
}

func (m *Memory) FetchContacts(_ context.Context, author string) (*ContactList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodFetchContacts); err != nil {
		return nil, err
	}
	cl, ok := m.contacts[author]
	if !ok {
		return nil, nil
	}
	cl.Contacts = append([]models.Contact(nil), cl.Contacts...)
	return &cl, nil
}

func (m *Memory) FetchDeletionsSince(_ context.Context, author string, since time.Time) ([]Deletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodFetchDeletions); err != nil {
		return nil, err
	}
	var out []Deletion
	for _, d := range m.deletions {
		if d.Author == author && !d.PublishedAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) sortedNotes(since time.Time) []RemoteNote {
	out := make([]RemoteNote, 0, len(m.notes))
	for _, rn := range m.notes {
		if rn.PublishedAt.Before(since) {
			continue
		}
		rn.Note = rn.Note.Clone()
		out = append(out, rn)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.Before(out[j].PublishedAt)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

var (
	_ Client = (*Memory)(nil)
	_ Pinger = (*Memory)(nil)
)
