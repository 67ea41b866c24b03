package syncer

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/matcher"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/ontology"
	"github.com/starford/relaynote/internal/relay"
	"github.com/starford/relaynote/internal/store"
)

const me = "npub-alice"

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func testStore(t *testing.T) *store.DB {
	t.Helper()
	f, err := os.CreateTemp("", "relaynote-sync-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := store.Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// clock returns a clock advancing one minute per call, starting after start.
func clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Minute)
		return cur
	}
}

func note(id, content string, updated time.Time, tags ...string) models.Note {
	return models.Note{
		ID:        id,
		Title:     "Note " + id,
		Content:   content,
		Tags:      tags,
		Status:    models.StatusPublished,
		CreatedAt: base,
		UpdatedAt: updated,
	}
}

func newOrchestrator(st store.Store, rc relay.Client, opts ...Option) *Orchestrator {
	opts = append([]Option{WithClock(clock(base.Add(24 * time.Hour)))}, opts...)
	return New(st, rc, me, opts...)
}

func TestRunPass_LocalNewerIsPublishedAndKept(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()
	ctx := context.Background()

	local := note("n1", "local edit", base.Add(2*time.Hour))
	require.NoError(t, st.SaveNote(local))
	mem.InjectNote(relay.RemoteNote{
		EventID: "e-old",
		Author:  me,
		Note:    note("n1", "stale remote", base.Add(time.Hour)),
	})

	rep, err := newOrchestrator(st, mem).RunPass(ctx, PassOptions{})
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, 1, rep.NotesPublished)
	assert.Equal(t, 0, rep.NotesPulled)

	got, err := st.GetNote("n1")
	require.NoError(t, err)
	assert.Equal(t, "local edit", got.Content)
	assert.Equal(t, relay.NoteEventID(me, local), got.RemoteSyncID)

	onRelay := mem.Notes()
	require.Len(t, onRelay, 1)
	assert.Equal(t, "local edit", onRelay[0].Note.Content)

	pending, err := st.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunPass_RemoteOnlyNoteIsCreatedSanitized(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	mem.InjectNote(relay.RemoteNote{
		EventID:      "e1",
		Author:       me,
		Note:         note("r1", `<p>hello</p><script>alert(1)</script>`, base.Add(time.Hour)),
		EmbeddingTag: "[0.5,0.5]",
	})

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.NotesPulled)

	got, err := st.GetNote("r1")
	require.NoError(t, err)
	assert.Contains(t, got.Content, "hello")
	assert.NotContains(t, got.Content, "<script")
	assert.Equal(t, "e1", got.RemoteSyncID)
	assert.Equal(t, []float32{0.5, 0.5}, got.Embedding)

	pending, err := st.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending, "pulled notes are not queued for publication")
}

func TestRunPass_TombstoneRemovesNoteAndOp(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	n := note("t1", "doomed", base.Add(time.Hour))
	n.RemoteSyncID = "e9"
	require.NoError(t, st.SaveNote(n))
	_, err := st.Enqueue(models.SyncQueueOp{NoteID: "t1", Action: models.ActionSave})
	require.NoError(t, err)

	// Keep the op queued through the flush so the tombstone has to drop it.
	mem.FailOn(relay.MethodPublishNote, errors.New("rate limited"))
	mem.InjectDeletion(relay.Deletion{EventID: "d1", Author: me, RemoteID: "e9"})

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Tombstoned)
	assert.ErrorIs(t, rep.Err(), apperr.ErrTransport)

	_, err = st.GetNote("t1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	has, err := st.HasPendingOp("t1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRunPass_PublishFailureKeepsOp(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	require.NoError(t, st.SaveNote(note("n1", "body", base.Add(time.Hour))))
	_, err := st.Enqueue(models.SyncQueueOp{NoteID: "n1", Action: models.ActionSave})
	require.NoError(t, err)
	mem.FailOn(relay.MethodPublishNote, errors.New("boom"))

	o := newOrchestrator(st, mem)
	rep, err := o.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err, "step failures do not abort the pass")
	assert.ErrorIs(t, rep.Err(), apperr.ErrTransport)

	has, err := st.HasPendingOp("n1")
	require.NoError(t, err)
	assert.True(t, has)

	status := o.Status()
	assert.NotEmpty(t, status.LastError)
	assert.True(t, rep.StartedAt.Equal(status.LastSyncAt), "soft failures still advance the timestamp")

	mem.FailOn(relay.MethodPublishNote, nil)
	rep, err = o.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.NotesPublished)
	assert.Empty(t, o.Status().LastError, "error is cleared by the next pass")
}

func TestRunPass_OutboxDropRules(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	private := note("p1", "secret", base.Add(time.Hour))
	private.Status = models.StatusPrivate
	require.NoError(t, st.SaveNote(private))

	ops := []models.SyncQueueOp{
		{NoteID: "p1", Action: models.ActionSave},
		{NoteID: "gone", Action: models.ActionSave},
		{NoteID: "never", Action: models.ActionDelete},
		{NoteID: "old", Action: models.ActionDelete, RemoteEventID: "e-old"},
	}
	for _, op := range ops {
		_, err := st.Enqueue(op)
		require.NoError(t, err)
	}

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, 3, rep.OpsDropped)
	assert.Equal(t, 1, rep.DeletesPublished)
	assert.Equal(t, 0, rep.NotesPublished)
	assert.Empty(t, mem.Notes(), "private notes never reach the relay")

	dels, err := mem.FetchDeletionsSince(context.Background(), me, time.Time{})
	require.NoError(t, err)
	require.Len(t, dels, 1)
	assert.Equal(t, "e-old", dels[0].RemoteID)

	pending, err := st.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunPass_RemoteNotOlderDropsQueuedSave(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	require.NoError(t, st.SaveNote(note("n1", "mine", base.Add(time.Hour))))
	_, err := st.Enqueue(models.SyncQueueOp{NoteID: "n1", Action: models.ActionSave})
	require.NoError(t, err)
	mem.InjectNote(relay.RemoteNote{EventID: "e2", Author: me, Note: note("n1", "theirs", base.Add(2*time.Hour))})

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.NotesPulled)
	assert.Equal(t, 0, rep.NotesPublished)

	got, err := st.GetNote("n1")
	require.NoError(t, err)
	assert.Equal(t, "theirs", got.Content)
	has, err := st.HasPendingOp("n1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRunPass_PendingDeleteIsNotResurrected(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	_, err := st.Enqueue(models.SyncQueueOp{NoteID: "n1", Action: models.ActionDelete, RemoteEventID: "e1"})
	require.NoError(t, err)
	mem.InjectNote(relay.RemoteNote{EventID: "e1", Author: me, Note: note("n1", "old", base)})

	_, err = newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)

	_, err = st.GetNote("n1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, mem.Notes())
}

func TestRunPass_InvalidRemoteItemsAreSkipped(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	mem.InjectNote(relay.RemoteNote{EventID: "bad-id", Author: me, Note: models.Note{Title: "no id", UpdatedAt: base}})
	mem.InjectNote(relay.RemoteNote{EventID: "bad-vec", Author: me, Note: note("v1", "x", base), EmbeddingTag: "not,a,vector"})
	mem.InjectNote(relay.RemoteNote{EventID: "good", Author: me, Note: note("g1", "fine", base)})

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, 2, rep.NotesInvalid)
	assert.Equal(t, 1, rep.NotesPulled)

	_, err = st.GetNote("v1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRunPass_Offline(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()
	_, err := st.Enqueue(models.SyncQueueOp{NoteID: "n1", Action: models.ActionSave})
	require.NoError(t, err)

	mem.SetOffline(true)
	o := newOrchestrator(st, mem)
	_, err = o.RunPass(context.Background(), PassOptions{})
	require.ErrorIs(t, err, apperr.ErrOffline)

	last, err := st.LastSyncAt()
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "offline pass must not advance the timestamp")
	has, err := st.HasPendingOp("n1")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Contains(t, o.Status().LastError, "unreachable")

	down := ConnectivityFunc(func(context.Context) bool { return false })
	mem.SetOffline(false)
	_, err = newOrchestrator(st, mem, WithConnectivity(down)).RunPass(context.Background(), PassOptions{})
	assert.ErrorIs(t, err, apperr.ErrOffline)
}

func TestRunPass_NotAuthenticated(t *testing.T) {
	st := testStore(t)
	o := New(st, relay.NewMemory(), "")
	_, err := o.RunPass(context.Background(), PassOptions{})
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
	assert.True(t, apperr.IsFatalForSync(err))
}

type blockingRelay struct {
	*relay.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRelay) FetchOntology(ctx context.Context, author string) (*relay.RemoteOntology, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.Memory.FetchOntology(ctx, author)
}

func TestRunPass_ReentrantCallIsSkipped(t *testing.T) {
	st := testStore(t)
	br := &blockingRelay{
		Memory:  relay.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newOrchestrator(st, br)

	done := make(chan error, 1)
	go func() {
		_, err := o.RunPass(context.Background(), PassOptions{})
		done <- err
	}()
	<-br.entered

	assert.True(t, o.Status().Running)
	rep, err := o.RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	assert.True(t, rep.Skipped)

	close(br.release)
	require.NoError(t, <-done)
	assert.False(t, o.Running())
}

func TestRunPass_TwoPassesAreIdempotent(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SaveNote(note("n1", "local", base.Add(time.Hour), "go")))
	_, err := st.Enqueue(models.SyncQueueOp{NoteID: "n1", Action: models.ActionSave})
	require.NoError(t, err)
	mem.InjectNote(relay.RemoteNote{EventID: "e1", Author: me, Note: note("r1", "<b>remote</b>", base)})
	mem.InjectNote(relay.RemoteNote{EventID: "f1", Author: "npub-bob", Note: note("b1", "theirs", base, "Go")})
	require.NoError(t, st.SaveContact(models.Contact{PubKey: "npub-bob", Alias: "Bob", AddedAt: base}))

	o := newOrchestrator(st, mem, WithMatcher(matcher.NewEngine(models.Preferences{})))
	first, err := o.RunPass(ctx, PassOptions{})
	require.NoError(t, err)
	require.NoError(t, first.Err())
	assert.Equal(t, 1, first.Matches)

	notes1, err := st.ListNotes()
	require.NoError(t, err)
	matches1, err := st.ListAllMatches()
	require.NoError(t, err)
	relay1 := mem.Notes()

	second, err := o.RunPass(ctx, PassOptions{})
	require.NoError(t, err)
	require.NoError(t, second.Err())
	assert.Zero(t, second.NotesPulled)
	assert.Zero(t, second.NotesPublished)
	assert.Zero(t, second.Matches)
	assert.False(t, second.ContactsPublished)

	notes2, err := st.ListNotes()
	require.NoError(t, err)
	matches2, err := st.ListAllMatches()
	require.NoError(t, err)
	pending, err := st.ListPending()
	require.NoError(t, err)

	assert.Equal(t, notes1, notes2)
	assert.Equal(t, matches1, matches2)
	assert.Equal(t, relay1, mem.Notes())
	assert.Empty(t, pending)

	last, err := st.LastSyncAt()
	require.NoError(t, err)
	assert.True(t, second.StartedAt.Equal(last))
}

func TestRunPass_OntologyTagMatch(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	tree := models.NewOntologyTree()
	require.NoError(t, ontology.AddNode(tree, models.OntologyNode{ID: "ai", Label: "AI"}))
	require.NoError(t, ontology.AddNode(tree, models.OntologyNode{ID: "nlp", Label: "NLP", ParentID: "ai"}))
	tree.UpdatedAt = base
	require.NoError(t, st.SaveOntology(tree))

	require.NoError(t, st.SaveNote(note("mine", "about AI", base, "#AI")))
	mem.InjectNote(relay.RemoteNote{EventID: "f1", Author: "npub-bob", Note: note("theirs", "language models", base, "NLP")})

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	require.NoError(t, rep.Err())

	matches, err := st.ListMatches("mine")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, models.MatchTag, m.MatchType)
	assert.Equal(t, "theirs", m.TargetNoteID)
	assert.Equal(t, "npub-bob", m.TargetAuthor)
	assert.Greater(t, m.Similarity, 0.0)

	_, err = st.GetNote("theirs")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "foreign notes are not imported")
}

func TestRunPass_Ontology(t *testing.T) {
	ctx := context.Background()

	t.Run("remote newer is pulled", func(t *testing.T) {
		st := testStore(t)
		mem := relay.NewMemory()

		local := models.NewOntologyTree()
		local.UpdatedAt = base
		require.NoError(t, st.SaveOntology(local))

		remote := models.NewOntologyTree()
		require.NoError(t, ontology.AddNode(remote, models.OntologyNode{ID: "ml", Label: "ML"}))
		remote.UpdatedAt = base.Add(time.Hour)
		_, err := mem.PublishOntology(ctx, me, remote)
		require.NoError(t, err)

		rep, err := newOrchestrator(st, mem).RunPass(ctx, PassOptions{})
		require.NoError(t, err)
		assert.True(t, rep.OntologyPulled)

		got, err := st.GetOntology()
		require.NoError(t, err)
		assert.Contains(t, got.Nodes, "ml")
	})

	t.Run("local change is published once", func(t *testing.T) {
		st := testStore(t)
		mem := relay.NewMemory()

		local := models.NewOntologyTree()
		require.NoError(t, ontology.AddNode(local, models.OntologyNode{ID: "go", Label: "Go"}))
		local.UpdatedAt = base
		require.NoError(t, st.SaveOntology(local))
		require.NoError(t, st.SetOntologyNeedsSync(true))

		o := newOrchestrator(st, mem)
		rep, err := o.RunPass(ctx, PassOptions{})
		require.NoError(t, err)
		assert.True(t, rep.OntologyPublished)

		needs, err := st.OntologyNeedsSync()
		require.NoError(t, err)
		assert.False(t, needs)

		ro, err := mem.FetchOntology(ctx, me)
		require.NoError(t, err)
		require.NotNil(t, ro)
		assert.Contains(t, ro.Tree.Nodes, "go")

		rep, err = o.RunPass(ctx, PassOptions{})
		require.NoError(t, err)
		assert.False(t, rep.OntologyPublished)
	})

	t.Run("failed publish keeps the flag", func(t *testing.T) {
		st := testStore(t)
		mem := relay.NewMemory()
		local := models.NewOntologyTree()
		local.UpdatedAt = base
		require.NoError(t, st.SaveOntology(local))
		require.NoError(t, st.SetOntologyNeedsSync(true))
		mem.FailOn(relay.MethodPublishOntology, errors.New("down"))

		rep, err := newOrchestrator(st, mem).RunPass(ctx, PassOptions{})
		require.NoError(t, err)
		assert.Error(t, rep.Err())

		needs, err := st.OntologyNeedsSync()
		require.NoError(t, err)
		assert.True(t, needs)
	})
}

func TestRunPass_ContactsMerge(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SaveContact(models.Contact{PubKey: "npub-carol", Alias: "Carol", AddedAt: base}))
	_, err := mem.PublishContactList(ctx, me, []models.Contact{
		{PubKey: "npub-carol", Alias: "someone else", AddedAt: base},
		{PubKey: "npub-dave", Alias: "Dave", AddedAt: base.Add(time.Minute)},
	})
	require.NoError(t, err)

	rep, err := newOrchestrator(st, mem).RunPass(ctx, PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ContactsAdded)
	assert.False(t, rep.ContactsPublished, "relay already has every local contact")

	contacts, err := st.ListContacts()
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Carol", contacts[0].Alias, "local alias is never overwritten")

	require.NoError(t, st.SaveContact(models.Contact{PubKey: "npub-erin", AddedAt: base.Add(time.Hour)}))
	rep, err = newOrchestrator(st, mem).RunPass(ctx, PassOptions{})
	require.NoError(t, err)
	assert.True(t, rep.ContactsPublished)

	cl, err := mem.FetchContacts(ctx, me)
	require.NoError(t, err)
	assert.Len(t, cl.Contacts, 3)
}

func TestRunPass_TombstoneLeavesFolder(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	require.NoError(t, st.SaveFolder(models.Folder{ID: "f1", Name: "Work", NoteIDs: []string{"keep", "t1"}, CreatedAt: base, UpdatedAt: base}))
	n := note("t1", "doomed", base.Add(time.Hour))
	n.FolderID = "f1"
	n.RemoteSyncID = "e9"
	require.NoError(t, st.SaveNote(n))
	mem.InjectDeletion(relay.Deletion{EventID: "d1", Author: me, RemoteID: "e9"})

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, 1, rep.Tombstoned)

	f, err := st.GetFolder("f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, f.NoteIDs)
}

func TestRunPass_SameNoteIDFromTwoAuthors(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()

	require.NoError(t, st.SaveNote(note("mine", "local", base, "go", "sync", "crdt")))
	mem.InjectNote(relay.RemoteNote{EventID: "f-bob", Author: "npub-bob", Note: note("same-id", "bob", base, "go", "sync", "crdt")})
	mem.InjectNote(relay.RemoteNote{EventID: "f-carol", Author: "npub-carol", Note: note("same-id", "carol", base, "go", "rust")})

	rep, err := newOrchestrator(st, mem).RunPass(context.Background(), PassOptions{})
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, 2, rep.Matches)

	matches, err := st.ListMatches("mine")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "npub-bob", matches[0].TargetAuthor)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Equal(t, "npub-carol", matches[1].TargetAuthor)
	assert.InDelta(t, 0.25, matches[1].Similarity, 1e-9)
	for _, m := range matches {
		assert.Equal(t, "same-id", m.TargetNoteID)
	}
}

func TestRunPass_EqualVersionAdoptsRelayID(t *testing.T) {
	st := testStore(t)
	mem := relay.NewMemory()
	ctx := context.Background()

	local := note("n1", "same", base.Add(time.Hour))
	local.RemoteSyncID = "e-local"
	require.NoError(t, st.SaveNote(local))
	mem.InjectNote(relay.RemoteNote{EventID: "e-relay", Author: me, Note: note("n1", "same", base.Add(time.Hour))})

	o := newOrchestrator(st, mem)
	rep, err := o.RunPass(ctx, PassOptions{})
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Zero(t, rep.NotesPulled)
	assert.Zero(t, rep.NotesPublished)

	got, err := st.GetNote("n1")
	require.NoError(t, err)
	assert.Equal(t, "e-relay", got.RemoteSyncID)
	assert.True(t, got.UpdatedAt.Equal(local.UpdatedAt))

	mem.InjectDeletion(relay.Deletion{EventID: "d1", Author: me, RemoteID: "e-relay"})
	rep, err = o.RunPass(ctx, PassOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Tombstoned)

	_, err = st.GetNote("n1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
