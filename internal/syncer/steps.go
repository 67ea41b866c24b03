package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/conflict"
	"github.com/starford/relaynote/internal/embedding"
	"github.com/starford/relaynote/internal/matcher"
	"github.com/starford/relaynote/internal/models"
)

// passState carries what earlier steps learned to later ones.
type passState struct {
	opts  PassOptions
	since time.Time
	// fetched holds the updatedAt of own notes seen on the relay this pass.
	fetched map[string]time.Time
	foreign []matcher.Remote
}

func (o *Orchestrator) localOntology() (*models.OntologyTree, error) {
	tree, err := o.store.GetOntology()
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return tree, err
}

func (o *Orchestrator) syncOntology(ctx context.Context, st *passState, rep *Report) error {
	remote, err := o.relay.FetchOntology(ctx, o.identity)
	if err != nil {
		return err
	}
	local, err := o.localOntology()
	if err != nil {
		return err
	}
	needs, err := o.store.OntologyNeedsSync()
	if err != nil {
		return err
	}

	if remote == nil {
		if local == nil || !(needs || st.opts.Full) {
			return nil
		}
		return o.publishOntology(ctx, local, rep)
	}
	if err := remote.Validate(); err != nil {
		return apperr.Validation("syncer: remote ontology", err)
	}

	switch conflict.ResolveOntology(local, remote.Tree) {
	case conflict.KeepRemote:
		if err := o.store.SaveOntology(remote.Tree); err != nil {
			return err
		}
		rep.OntologyPulled = true
		o.logger.Debug("syncer: ontology pulled", slog.String("event_id", remote.EventID))
		return o.store.SetOntologyNeedsSync(false)
	default:
		if local.UpdatedAt.After(remote.Tree.UpdatedAt) || needs {
			return o.publishOntology(ctx, local, rep)
		}
	}
	return nil
}

// publishOntology publishes tree and clears the needs-sync flag unless the
// tree was edited again meanwhile.
func (o *Orchestrator) publishOntology(ctx context.Context, tree *models.OntologyTree, rep *Report) error {
	if _, err := o.relay.PublishOntology(ctx, o.identity, tree); err != nil {
		return err
	}
	rep.OntologyPublished = true
	current, err := o.localOntology()
	if err != nil {
		return err
	}
	if current != nil && current.UpdatedAt.Equal(tree.UpdatedAt) {
		return o.store.SetOntologyNeedsSync(false)
	}
	return nil
}

func (o *Orchestrator) pullNotes(ctx context.Context, st *passState, rep *Report) error {
	remote, err := o.relay.FetchNotesSince(ctx, st.since)
	if err != nil {
		return err
	}

	var errs []error
	for _, rn := range remote {
		if err := rn.Validate(); err != nil {
			rep.NotesInvalid++
			o.logger.Warn("syncer: skipping invalid note event",
				slog.String("event_id", rn.EventID),
				slog.String("error", err.Error()),
			)
			continue
		}
		vec, err := embedding.ParseVector(rn.EmbeddingTag)
		if err != nil {
			rep.NotesInvalid++
			o.logger.Warn("syncer: skipping note with malformed embedding",
				slog.String("event_id", rn.EventID),
				slog.String("error", err.Error()),
			)
			continue
		}
		rn.Note.Embedding = vec

		if rn.Author != "" && rn.Author != o.identity {
			if !rn.Note.IsPrivate() {
				st.foreign = append(st.foreign, matcher.Remote{Author: rn.Author, Note: rn.Note})
			}
			continue
		}

		if err := o.reconcileNote(st, rn.EventID, rn.Note, rep); err != nil {
			errs = append(errs, fmt.Errorf("note %s: %w", rn.Note.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) findLocal(remote models.Note, eventID string) (*models.Note, error) {
	n, err := o.store.GetNote(remote.ID)
	if err == nil {
		return &n, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	n, err = o.store.FindNoteByRemoteID(eventID)
	if err == nil {
		return &n, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return nil, err
}

func (o *Orchestrator) reconcileNote(st *passState, eventID string, remote models.Note, rep *Report) error {
	if prev, ok := st.fetched[remote.ID]; !ok || remote.UpdatedAt.After(prev) {
		st.fetched[remote.ID] = remote.UpdatedAt
	}

	op, err := o.store.PendingOp(remote.ID)
	switch {
	case err == nil && op.Action == models.ActionDelete:
		// A local delete is waiting to be published.
		return nil
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return err
	}

	local, err := o.findLocal(remote, eventID)
	if err != nil {
		return err
	}

	res := conflict.ResolveNote(local, remote, o.sanitizer)
	if res.Decision == conflict.KeepRemote {
		n := res.Note
		n.RemoteSyncID = eventID
		// Folders are local organisation and never travel with a note.
		n.FolderID = ""
		if local != nil {
			n.ID = local.ID
			n.FolderID = local.FolderID
			if n.Embedding == nil {
				n.Embedding = local.Embedding
			}
		}
		if n.UpdatedAt.Before(n.CreatedAt) {
			n.CreatedAt = n.UpdatedAt
		}
		if err := o.store.SaveNote(n); err != nil {
			return err
		}
		rep.NotesPulled++
		o.logger.Debug("syncer: note pulled", slog.String("id", n.ID), slog.String("event_id", eventID))
		return nil
	}

	switch {
	case local.UpdatedAt.After(remote.UpdatedAt):
		if local.IsPrivate() {
			return nil
		}
		if _, err := o.store.PendingOp(local.ID); err == nil {
			return nil
		}
		_, err := o.store.Enqueue(models.SyncQueueOp{NoteID: local.ID, Action: models.ActionSave})
		return err
	case local.RemoteSyncID != eventID:
		// Same version: adopt the relay's id so later deletes reference it.
		return o.store.SetRemoteSyncID(local.ID, eventID)
	}
	return nil
}

func (o *Orchestrator) flushOutbox(ctx context.Context, st *passState, rep *Report) error {
	ops, err := o.store.ListPending()
	if err != nil {
		return err
	}
	var errs []error
	for _, op := range ops {
		if err := o.flushOp(ctx, st, op, rep); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op.Action, op.NoteID, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) drop(op models.SyncQueueOp, reason string, rep *Report) error {
	o.logger.Debug("syncer: dropping op",
		slog.String("note_id", op.NoteID),
		slog.String("action", string(op.Action)),
		slog.String("reason", reason),
	)
	removed, err := o.store.RemoveOpIfUnchanged(op.NoteID, op.Timestamp)
	if removed {
		rep.OpsDropped++
	}
	return err
}

func (o *Orchestrator) flushOp(ctx context.Context, st *passState, op models.SyncQueueOp, rep *Report) error {
	switch op.Action {
	case models.ActionSave:
		n, err := o.store.GetNote(op.NoteID)
		if errors.Is(err, apperr.ErrNotFound) {
			return o.drop(op, "note missing", rep)
		}
		if err != nil {
			return err
		}
		if n.IsPrivate() {
			return o.drop(op, "note private", rep)
		}
		if seen, ok := st.fetched[n.ID]; ok && !seen.Before(n.UpdatedAt) {
			return o.drop(op, "relay copy not older", rep)
		}
		eventID, err := o.relay.PublishNote(ctx, o.identity, n)
		if err != nil {
			return err
		}
		if err := o.store.SetRemoteSyncID(n.ID, eventID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		rep.NotesPublished++
		_, err = o.store.RemoveOpIfUnchanged(op.NoteID, op.Timestamp)
		return err

	case models.ActionDelete:
		if op.RemoteEventID == "" {
			return o.drop(op, "never published", rep)
		}
		if _, err := o.relay.PublishDeletion(ctx, o.identity, op.RemoteEventID); err != nil {
			return err
		}
		rep.DeletesPublished++
		_, err := o.store.RemoveOpIfUnchanged(op.NoteID, op.Timestamp)
		return err
	}
	return o.drop(op, "unknown action", rep)
}

func (o *Orchestrator) syncContacts(ctx context.Context, rep *Report) error {
	remote, err := o.relay.FetchContacts(ctx, o.identity)
	if err != nil {
		return err
	}
	local, err := o.store.ListContacts()
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(local))
	for _, c := range local {
		known[c.PubKey] = struct{}{}
	}
	onRelay := make(map[string]struct{})
	if remote != nil {
		for _, c := range remote.Contacts {
			if c.PubKey == "" {
				continue
			}
			onRelay[c.PubKey] = struct{}{}
			if _, ok := known[c.PubKey]; ok {
				continue
			}
			if c.AddedAt.IsZero() {
				c.AddedAt = o.now().UTC()
			}
			if err := o.store.SaveContact(c); err != nil {
				return err
			}
			known[c.PubKey] = struct{}{}
			rep.ContactsAdded++
		}
	}

	missing := false
	for _, c := range local {
		if _, ok := onRelay[c.PubKey]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return nil
	}
	merged, err := o.store.ListContacts()
	if err != nil {
		return err
	}
	if _, err := o.relay.PublishContactList(ctx, o.identity, merged); err != nil {
		return err
	}
	rep.ContactsPublished = true
	return nil
}

func (o *Orchestrator) applyTombstones(ctx context.Context, st *passState, rep *Report) error {
	dels, err := o.relay.FetchDeletionsSince(ctx, o.identity, st.since)
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range dels {
		if err := d.Validate(); err != nil {
			o.logger.Warn("syncer: skipping invalid tombstone",
				slog.String("event_id", d.EventID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n, err := o.store.FindNoteByRemoteID(d.RemoteID)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := o.deleteLocal(n); err != nil {
			errs = append(errs, fmt.Errorf("tombstone %s: %w", d.EventID, err))
			continue
		}
		rep.Tombstoned++
		o.logger.Debug("syncer: note tombstoned", slog.String("id", n.ID), slog.String("remote_id", d.RemoteID))
	}
	return errors.Join(errs...)
}

// deleteLocal removes n with its folder membership, outbox op and matches.
func (o *Orchestrator) deleteLocal(n models.Note) error {
	if err := o.store.DeleteNote(n.ID); err != nil {
		return err
	}
	if n.FolderID != "" {
		if err := o.removeFromFolder(n.FolderID, n.ID); err != nil {
			return err
		}
	}
	if err := o.store.RemoveOp(n.ID); err != nil {
		return err
	}
	return o.store.DeleteMatchesForNote(n.ID)
}

func (o *Orchestrator) removeFromFolder(folderID, noteID string) error {
	f, err := o.store.GetFolder(folderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !slices.Contains(f.NoteIDs, noteID) {
		return nil
	}
	f.NoteIDs = slices.DeleteFunc(f.NoteIDs, func(id string) bool { return id == noteID })
	f.UpdatedAt = o.now().UTC()
	return o.store.SaveFolder(f)
}

func (o *Orchestrator) discover(ctx context.Context, st *passState, rep *Report) error {
	if len(st.foreign) == 0 || o.engine == nil {
		return nil
	}
	local, err := o.store.ListNotes()
	if err != nil {
		return err
	}
	if len(local) == 0 {
		return nil
	}
	tree, err := o.localOntology()
	if err != nil {
		return err
	}

	if o.embedder != nil && o.engine.Preferences().AIEnabled {
		for i := range st.foreign {
			r := &st.foreign[i]
			if len(r.Note.Embedding) > 0 {
				continue
			}
			vec, err := o.embedder.Embed(ctx, embedding.NoteText(r.Note))
			if err != nil {
				o.logger.Debug("syncer: embedding unavailable", slog.String("id", r.Note.ID), slog.String("error", err.Error()))
				continue
			}
			r.Note.Embedding = vec
		}
	}

	matches, matchErr := o.engine.Discover(local, st.foreign, tree)
	touched := make(map[string]struct{})
	var errs []error
	for _, m := range matches {
		saved, err := o.store.SaveMatch(m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if saved {
			rep.Matches++
			touched[m.LocalNoteID] = struct{}{}
		}
	}
	for id := range touched {
		if err := o.store.PruneMatches(id, o.maxMatches); err != nil {
			errs = append(errs, err)
		}
	}
	if matchErr != nil {
		errs = append(errs, matchErr)
	}
	return errors.Join(errs...)
}
