package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// Pool fans calls out to several relays. Publishing succeeds when at least one
// relay accepts the event. Fetches merge what every reachable relay returns.
type Pool struct {
	clients []Client
	logger  *slog.Logger
}

// NewPool returns a pool over clients.
func NewPool(logger *slog.Logger, clients ...Client) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{clients: clients, logger: logger}
}

// Len returns the number of relays.
func (p *Pool) Len() int {
	return len(p.clients)
}

// Reachable reports whether at least one relay answers a ping. Clients that
// cannot be pinged count as reachable.
func (p *Pool) Reachable(ctx context.Context) bool {
	if len(p.clients) == 0 {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(p.clients))
	for _, c := range p.clients {
		go func(c Client) {
			pinger, ok := c.(Pinger)
			if !ok {
				results <- true
				return
			}
			results <- pinger.Ping(ctx) == nil
		}(c)
	}
	for range p.clients {
		if <-results {
			return true
		}
	}
	return false
}

// Ping succeeds when any relay answers.
func (p *Pool) Ping(ctx context.Context) error {
	if p.Reachable(ctx) {
		return nil
	}
	return apperr.Transport("relay: ping", ErrUnavailable)
}

// Close closes every client that holds a connection.
func (p *Pool) Close() error {
	var errs []error
	for _, c := range p.clients {
		if closer, ok := c.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// each runs fn against every relay concurrently and returns the per-relay errors.
func (p *Pool) each(ctx context.Context, fn func(ctx context.Context, i int, c Client) error) []error {
	errs := make([]error, len(p.clients))
	var g errgroup.Group
	for i, c := range p.clients {
		g.Go(func() error {
			errs[i] = fn(ctx, i, c)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (p *Pool) publish(ctx context.Context, op string, fn func(ctx context.Context, c Client) (string, error)) (string, error) {
	if len(p.clients) == 0 {
		return "", apperr.Transport("relay: "+op, errors.New("no relays configured"))
	}
	ids := make([]string, len(p.clients))
	errs := p.each(ctx, func(ctx context.Context, i int, c Client) error {
		id, err := fn(ctx, c)
		ids[i] = id
		return err
	})

	var failed []error
	for i, err := range errs {
		if err == nil {
			continue
		}
		p.logger.Warn("relay: publish failed",
			slog.String("op", op),
			slog.Int("relay", i),
			slog.String("error", err.Error()),
		)
		failed = append(failed, err)
	}
	for i, err := range errs {
		if err == nil {
			return ids[i], nil
		}
	}
	return "", errors.Join(failed...)
}

// fetch collects results from every relay. It fails only when every relay failed.
func fetch[T any](p *Pool, ctx context.Context, op string, fn func(ctx context.Context, c Client) (T, error)) ([]T, error) {
	if len(p.clients) == 0 {
		return nil, apperr.Transport("relay: "+op, errors.New("no relays configured"))
	}
	results := make([]T, len(p.clients))
	errs := p.each(ctx, func(ctx context.Context, i int, c Client) error {
		v, err := fn(ctx, c)
		results[i] = v
		return err
	})

	var (
		out    []T
		failed []error
	)
	for i, err := range errs {
		if err != nil {
			p.logger.Warn("relay: fetch failed",
				slog.String("op", op),
				slog.Int("relay", i),
				slog.String("error", err.Error()),
			)
			failed = append(failed, err)
			continue
		}
		out = append(out, results[i])
	}
	if len(out) == 0 {
		return nil, errors.Join(failed...)
	}
	return out, nil
}

func (p *Pool) PublishNote(ctx context.Context, author string, note models.Note) (string, error) {
	return p.publish(ctx, MethodPublishNote, func(ctx context.Context, c Client) (string, error) {
		return c.PublishNote(ctx, author, note)
	})
}

func (p *Pool) PublishDeletion(ctx context.Context, author, remoteID string) (string, error) {
	return p.publish(ctx, MethodPublishDeletion, func(ctx context.Context, c Client) (string, error) {
		return c.PublishDeletion(ctx, author, remoteID)
	})
}

func (p *Pool) PublishOntology(ctx context.Context, author string, tree *models.OntologyTree) (string, error) {
	return p.publish(ctx, MethodPublishOntology, func(ctx context.Context, c Client) (string, error) {
		return c.PublishOntology(ctx, author, tree)
	})
}

func (p *Pool) PublishContactList(ctx context.Context, author string, contacts []models.Contact) (string, error) {
	return p.publish(ctx, MethodPublishContacts, func(ctx context.Context, c Client) (string, error) {
		return c.PublishContactList(ctx, author, contacts)
	})
}

// FetchNotesSince merges note events from every relay, deduplicated by event id.
func (p *Pool) FetchNotesSince(ctx context.Context, since time.Time) ([]RemoteNote, error) {
	batches, err := fetch(p, ctx, MethodFetchNotes, func(ctx context.Context, c Client) ([]RemoteNote, error) {
		return c.FetchNotesSince(ctx, since)
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []RemoteNote
	for _, batch := range batches {
		for _, rn := range batch {
			if _, ok := seen[rn.EventID]; ok {
				continue
			}
			seen[rn.EventID] = struct{}{}
			out = append(out, rn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.Before(out[j].PublishedAt)
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

// FetchOntology returns the newest tree any relay holds for author.
func (p *Pool) FetchOntology(ctx context.Context, author string) (*RemoteOntology, error) {
	found, err := fetch(p, ctx, MethodFetchOntology, func(ctx context.Context, c Client) (*RemoteOntology, error) {
		return c.FetchOntology(ctx, author)
	})
	if err != nil {
		return nil, err
	}
	var best *RemoteOntology
	for _, ro := range found {
		if ro == nil || ro.Tree == nil {
			continue
		}
		if best == nil || ro.Tree.UpdatedAt.After(best.Tree.UpdatedAt) {
			best = ro
		}
	}
	return best, nil
}

// FetchContacts returns the most recently published list for author.
func (p *Pool) FetchContacts(ctx context.Context, author string) (*ContactList, error) {
	found, err := fetch(p, ctx, MethodFetchContacts, func(ctx context.Context, c Client) (*ContactList, error) {
		return c.FetchContacts(ctx, author)
	})
	if err != nil {
		return nil, err
	}
	var best *ContactList
	for _, cl := range found {
		if cl == nil {
			continue
		}
		if best == nil || cl.PublishedAt.After(best.PublishedAt) {
			best = cl
		}
	}
	return best, nil
}

// FetchDeletionsSince merges tombstones from every relay.
func (p *Pool) FetchDeletionsSince(ctx context.Context, author string, since time.Time) ([]Deletion, error) {
	batches, err := fetch(p, ctx, MethodFetchDeletions, func(ctx context.Context, c Client) ([]Deletion, error) {
		return c.FetchDeletionsSince(ctx, author, since)
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []Deletion
	for _, batch := range batches {
		for _, d := range batch {
			if _, ok := seen[d.EventID]; ok {
				continue
			}
			seen[d.EventID] = struct{}{}
			out = append(out, d)
		}
	}
	return out, nil
}

var (
	_ Client = (*Pool)(nil)
	_ Pinger = (*Pool)(nil)
)
