// Package syncer reconciles the local store with the relay network. One pass
// pulls the ontology and notes, flushes the outbox, merges contacts, applies
// tombstones and records matches against notes from other authors.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/conflict"
	"github.com/starford/relaynote/internal/embedding"
	"github.com/starford/relaynote/internal/matcher"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/relay"
	"github.com/starford/relaynote/internal/store"
)

// DefaultMaxMatchesPerNote bounds retained matches per local note.
const DefaultMaxMatchesPerNote = 20

// Connectivity reports whether the relay network can be reached.
type Connectivity interface {
	Reachable(ctx context.Context) bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) bool

func (f ConnectivityFunc) Reachable(ctx context.Context) bool {
	return f(ctx)
}

// PassOptions controls a single pass.
type PassOptions struct {
	// Full ignores the last sync timestamp and republishes the ontology
	// when the relay has none.
	Full bool `json:"full"`
}

// Report summarises one pass.
type Report struct {
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Full              bool      `json:"full"`
	Skipped           bool      `json:"skipped,omitempty"`
	OntologyPulled    bool      `json:"ontology_pulled"`
	OntologyPublished bool      `json:"ontology_published"`
	NotesPulled       int       `json:"notes_pulled"`
	NotesInvalid      int       `json:"notes_invalid"`
	NotesPublished    int       `json:"notes_published"`
	DeletesPublished  int       `json:"deletes_published"`
	OpsDropped        int       `json:"ops_dropped"`
	ContactsAdded     int       `json:"contacts_added"`
	ContactsPublished bool      `json:"contacts_published"`
	Tombstoned        int       `json:"tombstoned"`
	Matches           int       `json:"matches"`
	Errors            []string  `json:"errors,omitempty"`

	errs []error
}

// Err joins the step failures of the pass.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.errs...)
}

// Status is the externally visible state of the orchestrator.
type Status struct {
	Running    bool      `json:"running"`
	LastSyncAt time.Time `json:"last_sync_at"`
	LastError  string    `json:"last_error,omitempty"`
	LastReport *Report   `json:"last_report,omitempty"`
}

// Orchestrator runs sync passes. At most one pass is active at a time.
type Orchestrator struct {
	store      store.Store
	relay      relay.Client
	conn       Connectivity
	identity   string
	sanitizer  conflict.Sanitizer
	engine     *matcher.Engine
	embedder   embedding.Provider
	logger     *slog.Logger
	now        func() time.Time
	maxMatches int

	running atomic.Bool

	mu         sync.Mutex
	lastErr    error
	lastReport *Report
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConnectivity sets the reachability probe. By default a relay client
// that implements relay.Pinger is pinged and any other is assumed reachable.
func WithConnectivity(c Connectivity) Option {
	return func(o *Orchestrator) {
		o.conn = c
	}
}

// WithSanitizer replaces the HTML sanitizer applied to remote content.
func WithSanitizer(s conflict.Sanitizer) Option {
	return func(o *Orchestrator) {
		o.sanitizer = s
	}
}

// WithMatcher sets the engine used for discovery.
func WithMatcher(e *matcher.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = e
	}
}

// WithEmbedder embeds remote notes that arrive without an embedding tag.
func WithEmbedder(p embedding.Provider) Option {
	return func(o *Orchestrator) {
		o.embedder = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithMaxMatchesPerNote bounds retained matches per local note.
func WithMaxMatchesPerNote(n int) Option {
	return func(o *Orchestrator) {
		o.maxMatches = n
	}
}

// New returns an orchestrator syncing st with rc as identity.
func New(st store.Store, rc relay.Client, identity string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      st,
		relay:      rc,
		identity:   identity,
		sanitizer:  conflict.NewHTMLSanitizer(),
		engine:     matcher.NewEngine(models.Preferences{}),
		logger:     slog.Default(),
		now:        time.Now,
		maxMatches: DefaultMaxMatchesPerNote,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.conn == nil {
		o.conn = pingConnectivity{rc}
	}
	return o
}

type pingConnectivity struct {
	client relay.Client
}

func (p pingConnectivity) Reachable(ctx context.Context) bool {
	if pinger, ok := p.client.(relay.Pinger); ok {
		return pinger.Ping(ctx) == nil
	}
	return true
}

// Identity returns the public key passes run as.
func (o *Orchestrator) Identity() string {
	return o.identity
}

// RunPass runs one sync pass. A call made while another pass is active
// returns a skipped report and no error. The returned error is non-nil only
// for failures that abort the pass; step failures are collected in the report.
func (o *Orchestrator) RunPass(ctx context.Context, opts PassOptions) (*Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Debug("syncer: pass already running")
		return &Report{Skipped: true, Full: opts.Full}, nil
	}
	defer o.running.Store(false)

	o.mu.Lock()
	o.lastErr = nil
	o.mu.Unlock()

	rep := &Report{StartedAt: o.now().UTC(), Full: opts.Full}
	err := o.pass(ctx, opts, rep)
	rep.FinishedAt = o.now().UTC()

	o.mu.Lock()
	o.lastReport = rep
	switch {
	case err != nil:
		o.lastErr = err
	default:
		o.lastErr = rep.Err()
	}
	o.mu.Unlock()

	if err != nil {
		o.logger.Error("syncer: pass aborted", slog.String("error", err.Error()))
		return rep, err
	}
	o.logger.Info("syncer: pass completed",
		slog.Bool("full", opts.Full),
		slog.Int("pulled", rep.NotesPulled),
		slog.Int("published", rep.NotesPublished),
		slog.Int("tombstoned", rep.Tombstoned),
		slog.Int("matches", rep.Matches),
		slog.Int("errors", len(rep.errs)),
	)
	return rep, nil
}

func (o *Orchestrator) pass(ctx context.Context, opts PassOptions, rep *Report) error {
	if !o.conn.Reachable(ctx) {
		return fmt.Errorf("syncer: pass: %w", apperr.ErrOffline)
	}
	if o.identity == "" {
		return fmt.Errorf("syncer: pass: %w", apperr.ErrNotAuthenticated)
	}

	var since time.Time
	if !opts.Full {
		last, err := o.store.LastSyncAt()
		if err != nil {
			return fmt.Errorf("syncer: read last sync: %w", err)
		}
		since = last
	}

	st := &passState{
		opts:    opts,
		since:   since,
		fetched: make(map[string]time.Time),
	}

	o.step(rep, "ontology", func() error { return o.syncOntology(ctx, st, rep) })
	o.step(rep, "notes", func() error { return o.pullNotes(ctx, st, rep) })
	o.step(rep, "outbox", func() error { return o.flushOutbox(ctx, st, rep) })
	o.step(rep, "contacts", func() error { return o.syncContacts(ctx, rep) })
	o.step(rep, "tombstones", func() error { return o.applyTombstones(ctx, st, rep) })
	o.step(rep, "discovery", func() error { return o.discover(ctx, st, rep) })

	if err := o.store.SetLastSyncAt(rep.StartedAt); err != nil {
		o.step(rep, "timestamp", func() error { return err })
	}
	return nil
}

func (o *Orchestrator) step(rep *Report, name string, fn func() error) {
	err := fn()
	if err == nil {
		return
	}
	o.logger.Warn("syncer: step failed", slog.String("step", name), slog.String("error", err.Error()))
	rep.errs = append(rep.errs, fmt.Errorf("%s: %w", name, err))
	rep.Errors = append(rep.Errors, name+": "+err.Error())
}

// Running reports whether a pass is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Status returns the orchestrator state.
func (o *Orchestrator) Status() Status {
	st := Status{Running: o.running.Load()}
	if last, err := o.store.LastSyncAt(); err == nil {
		st.LastSyncAt = last
	} else {
		o.logger.Warn("syncer: read last sync", slog.String("error", err.Error()))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	st.LastReport = o.lastReport
	return st
}
