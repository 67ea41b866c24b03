// Package noteservice is the mutation layer over the local store. Every
// change that must reach the relays is queued in the outbox here.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/embedding"
	"github.com/starford/relaynote/internal/matcher"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/ontology"
	"github.com/starford/relaynote/internal/search"
	"github.com/starford/relaynote/internal/store"
)

// Note event kinds passed to a Notifier.
const (
	EventSaved   = "saved"
	EventDeleted = "deleted"
)

// Notifier is told about note changes, e.g. to push them to SSE clients.
type Notifier interface {
	PublishNoteEvent(kind, id string)
}

// NoteInput holds the user-editable fields of a note.
type NoteInput struct {
	Title    string        `json:"title"`
	Content  string        `json:"content"`
	Tags     []string      `json:"tags"`
	Values   models.Attrs  `json:"values,omitempty"`
	Fields   models.Attrs  `json:"fields,omitempty"`
	Status   models.Status `json:"status"`
	FolderID string        `json:"folder_id,omitempty"`
}

// Validate checks the input.
func (in NoteInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Length(0, 512)),
		validation.Field(&in.Status, validation.In(models.StatusDraft, models.StatusPublished, models.StatusPrivate)),
		validation.Field(&in.Tags, validation.Each(validation.Length(1, 128))),
	)
}

// Service coordinates the store, the outbox and the embedding provider.
type Service struct {
	store    store.Store
	embedder embedding.Provider
	prefs    models.Preferences
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedder enables embeddings for notes and search queries when AI is enabled.
func WithEmbedder(p embedding.Provider) Option {
	return func(s *Service) {
		s.embedder = p
	}
}

// WithPreferences sets the user preferences.
func WithPreferences(p models.Preferences) Option {
	return func(s *Service) {
		s.prefs = p
	}
}

// WithNotifier registers a listener for note changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService creates a note service over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preferences returns the preferences the service runs with.
func (s *Service) Preferences() models.Preferences {
	return s.prefs
}

func (s *Service) notify(kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishNoteEvent(kind, id)
	}
}

// embed returns an embedding for n, or nil when AI is off or the provider fails.
func (s *Service) embed(ctx context.Context, n models.Note) []float32 {
	if !s.prefs.AIEnabled || s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, embedding.NoteText(n))
	if err != nil {
		s.logger.Warn("embedding unavailable", slog.String("note_id", n.ID), slog.String("error", err.Error()))
		return nil
	}
	return vec
}

// GetNote returns a note by id.
func (s *Service) GetNote(_ context.Context, id string) (models.Note, error) {
	return s.store.GetNote(id)
}

// ListNotes returns every note, most recently updated first.
func (s *Service) ListNotes(_ context.Context) ([]models.Note, error) {
	notes, err := s.store.ListNotes()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(notes), nil
}

// CreateNote stores a new note and queues it for publication unless private.
func (s *Service) CreateNote(ctx context.Context, in NoteInput) (models.Note, error) {
	return s.createNote(ctx, s.newID(), in)
}

// CreateNoteWithID is CreateNote with a caller-chosen id. It fails with
// apperr.ErrAlreadyExists when the id is taken.
func (s *Service) CreateNoteWithID(ctx context.Context, id string, in NoteInput) (models.Note, error) {
	if id == "" {
		return models.Note{}, apperr.Validation("noteservice: create note", errors.New("id is required"))
	}
	if _, err := s.store.GetNote(id); err == nil {
		return models.Note{}, fmt.Errorf("noteservice: create note %s: %w", id, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return models.Note{}, err
	}
	return s.createNote(ctx, id, in)
}

func (s *Service) createNote(ctx context.Context, id string, in NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, apperr.Validation("noteservice: create note", err)
	}
	if in.Status == "" {
		in.Status = models.StatusDraft
	}
	if in.FolderID != "" {
		if _, err := s.store.GetFolder(in.FolderID); err != nil {
			return models.Note{}, err
		}
	}

	now := s.now().UTC()
	n := models.Note{
		ID:        id,
		Title:     in.Title,
		Content:   in.Content,
		Tags:      cleanTags(in.Tags),
		Values:    in.Values.Clone(),
		Fields:    in.Fields.Clone(),
		Status:    in.Status,
		FolderID:  in.FolderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	n.Embedding = s.embed(ctx, n)

	// Folder first; a failed note save undoes the membership.
	if n.FolderID != "" {
		if err := s.addToFolder(n.FolderID, n.ID); err != nil {
			return models.Note{}, err
		}
	}
	if err := s.store.SaveNote(n); err != nil {
		if n.FolderID != "" {
			if rerr := s.removeFromFolder(n.FolderID, n.ID); rerr != nil {
				s.logger.Warn("noteservice: folder rollback failed",
					slog.String("folder_id", n.FolderID),
					slog.String("note_id", n.ID),
					slog.String("error", rerr.Error()))
			}
		}
		return models.Note{}, err
	}
	if err := s.queueSave(n); err != nil {
		return models.Note{}, err
	}
	s.notify(EventSaved, n.ID)
	return n, nil
}

// UpdateNote replaces the editable fields of a note. Nothing is written
// when the input matches the stored note.
func (s *Service) UpdateNote(ctx context.Context, id string, in NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, apperr.Validation("noteservice: update note", err)
	}
	existing, err := s.store.GetNote(id)
	if err != nil {
		return models.Note{}, err
	}
	if in.Status == "" {
		in.Status = existing.Status
	}

	n := existing.Clone()
	n.Title = in.Title
	n.Content = in.Content
	n.Tags = cleanTags(in.Tags)
	n.Values = in.Values.Clone()
	n.Fields = in.Fields.Clone()
	n.Status = in.Status
	n.FolderID = in.FolderID

	if !contentChanged(existing, n) && existing.FolderID == n.FolderID {
		return existing, nil
	}
	if n.FolderID != "" && n.FolderID != existing.FolderID {
		if _, err := s.store.GetFolder(n.FolderID); err != nil {
			return models.Note{}, err
		}
	}

	changed := contentChanged(existing, n)
	if changed {
		n.UpdatedAt = s.now().UTC()
		if !n.UpdatedAt.After(existing.UpdatedAt) {
			n.UpdatedAt = existing.UpdatedAt.Add(time.Millisecond)
		}
		if n.UpdatedAt.Before(n.CreatedAt) {
			n.UpdatedAt = n.CreatedAt
		}
		if existing.Title != n.Title || existing.Content != n.Content || !slices.Equal(existing.Tags, n.Tags) {
			n.Embedding = s.embed(ctx, n)
		}
	}

	if err := s.store.SaveNote(n); err != nil {
		return models.Note{}, err
	}
	if existing.FolderID != n.FolderID {
		if err := s.moveBetweenFolders(n.ID, existing.FolderID, n.FolderID); err != nil {
			return models.Note{}, err
		}
	}
	if changed {
		if err := s.queueSave(n); err != nil {
			return models.Note{}, err
		}
	}
	s.notify(EventSaved, n.ID)
	return n, nil
}

// DeleteNote removes a note locally and queues a deletion for its published
// copy, if any.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	n, err := s.store.GetNote(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNote(id); err != nil {
		return err
	}
	if n.FolderID != "" {
		if err := s.removeFromFolder(n.FolderID, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	if err := s.store.DeleteMatchesForNote(id); err != nil {
		return err
	}
	if n.RemoteSyncID != "" {
		if _, err := s.store.Enqueue(models.SyncQueueOp{
			NoteID:        id,
			Action:        models.ActionDelete,
			RemoteEventID: n.RemoteSyncID,
		}); err != nil {
			return err
		}
	} else if err := s.store.RemoveOp(id); err != nil {
		return err
	}
	s.notify(EventDeleted, id)
	return nil
}

// queueSave upserts a save op for n, or drops any pending op when n is private.
func (s *Service) queueSave(n models.Note) error {
	if n.IsPrivate() {
		return s.store.RemoveOp(n.ID)
	}
	_, err := s.store.Enqueue(models.SyncQueueOp{NoteID: n.ID, Action: models.ActionSave})
	return err
}

// Search runs a ranked search over the local notes.
func (s *Service) Search(ctx context.Context, query string, f search.Filters) ([]models.Note, error) {
	corpus, err := s.store.ListNotes()
	if err != nil {
		return nil, err
	}
	tree, err := s.ontologyOrNil()
	if err != nil {
		return nil, err
	}
	opts := search.Options{
		AIEnabled:   s.prefs.AIEnabled,
		Sensitivity: s.prefs.Sensitivity(),
	}
	if s.prefs.AIEnabled && s.embedder != nil && query != "" {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			s.logger.Warn("query embedding unavailable", slog.String("error", err.Error()))
		} else {
			opts.QueryEmbedding = vec
		}
	}
	return nonNilSlice(search.Search(query, tree, f, corpus, opts)), nil
}

// FindMatches returns the matches recorded for a local note, most similar first.
func (s *Service) FindMatches(_ context.Context, noteID string) ([]models.Match, error) {
	if _, err := s.store.GetNote(noteID); err != nil {
		return nil, err
	}
	matches, err := s.store.ListMatches(noteID)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(matches), nil
}

// SimilarNotes ranks the other local notes by embedding similarity to noteID.
// It returns an empty result when AI matching is disabled.
func (s *Service) SimilarNotes(_ context.Context, noteID string) ([]matcher.Scored, error) {
	target, err := s.store.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	corpus, err := s.store.ListNotes()
	if err != nil {
		return nil, err
	}
	scored, err := matcher.NewEngine(s.prefs).Similar(target, corpus)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(scored), nil
}

func contentChanged(a, b models.Note) bool {
	return a.Title != b.Title ||
		a.Content != b.Content ||
		a.Status != b.Status ||
		!slices.Equal(a.Tags, b.Tags) ||
		!slices.Equal(a.Values, b.Values) ||
		!slices.Equal(a.Fields, b.Fields)
}

// cleanTags trims tags and drops empty and case-insensitive duplicates,
// keeping the first spelling.
func cleanTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		key := ontology.Normalize(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(t))
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
