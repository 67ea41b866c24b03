package matcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/relaynote/internal/models"
)

var (
	ErrNoEmbedding       = errors.New("note has no embedding")
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
)

// MatchError reports a matcher failure, as opposed to an empty result.
type MatchError struct {
	Op     string
	NoteID string
	Err    error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("matcher: %s %s: %v", e.Op, e.NoteID, e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// Remote is a note published by another author.
type Remote struct {
	Author string
	Note   models.Note
}

// Engine produces matches under the user's preferences.
type Engine struct {
	prefs models.Preferences
	now   func() time.Time
	newID func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the clock used to stamp matches.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine returns an engine for prefs.
func NewEngine(prefs models.Preferences, opts ...EngineOption) *Engine {
	e := &Engine{
		prefs: prefs,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Preferences returns the preferences the engine was built with.
func (e *Engine) Preferences() models.Preferences {
	return e.prefs
}

// Similar ranks candidates by embedding similarity to target using the
// configured sensitivity. With AI disabled it returns an empty result.
func (e *Engine) Similar(target models.Note, candidates []models.Note) ([]Scored, error) {
	if !e.prefs.AIEnabled {
		return []Scored{}, nil
	}
	if len(target.Embedding) == 0 {
		return nil, &MatchError{Op: "similar", NoteID: target.ID, Err: ErrNoEmbedding}
	}
	return FindSimilar(target, candidates, e.prefs.Sensitivity()), nil
}

// Discover compares every remote note with every local note and returns the
// tag and embedding matches found. Pairs that cannot be compared are
// reported in the error while the remaining pairs are still scored.
func (e *Engine) Discover(local []models.Note, remote []Remote, tree *models.OntologyTree) ([]models.Match, error) {
	var (
		out  []models.Match
		errs []error
		now  = e.now().UTC()
	)
	for _, r := range remote {
		for _, l := range local {
			if inter, union := tagOverlap(l.Tags, r.Note.Tags, tree); inter > 0 {
				out = append(out, models.Match{
					ID:           e.newID(),
					LocalNoteID:  l.ID,
					TargetNoteID: r.Note.ID,
					TargetAuthor: r.Author,
					Similarity:   float64(inter) / float64(union),
					SharedTags:   SharedTags(l.Tags, r.Note.Tags),
					Timestamp:    now,
					MatchType:    models.MatchTag,
				})
			}

			if !e.prefs.AIEnabled || len(l.Embedding) == 0 || len(r.Note.Embedding) == 0 {
				continue
			}
			if len(l.Embedding) != len(r.Note.Embedding) {
				errs = append(errs, &MatchError{Op: "discover", NoteID: r.Note.ID, Err: ErrDimensionMismatch})
				continue
			}
			sim := CosineSimilarity(l.Embedding, r.Note.Embedding)
			if sim < e.prefs.Sensitivity() {
				continue
			}
			out = append(out, models.Match{
				ID:           e.newID(),
				LocalNoteID:  l.ID,
				TargetNoteID: r.Note.ID,
				TargetAuthor: r.Author,
				Similarity:   sim,
				SharedTags:   SharedTags(l.Tags, r.Note.Tags),
				Timestamp:    now,
				MatchType:    models.MatchEmbedding,
			})
		}
	}
	return out, errors.Join(errs...)
}
