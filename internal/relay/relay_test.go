package relay

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleNote(id string, updated time.Time) models.Note {
	return models.Note{
		ID:        id,
		Title:     "Title " + id,
		Content:   "content",
		Tags:      []string{"go"},
		Status:    models.StatusPublished,
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
		Embedding: []float32{0.6, 0.8},
	}
}

func TestMemory_PublishNoteReplacesAndCarriesEmbeddingTag(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory(WithMemoryClock(fixedClock(base)))
	ctx := context.Background()

	n := sampleNote("n1", base)
	n.RemoteSyncID = "local-only"
	id1, err := m.PublishNote(ctx, "alice", n)
	if err != nil {
		t.Fatalf("PublishNote: %v", err)
	}
	if id1 != NoteEventID("alice", n) {
		t.Fatalf("event id = %q, want deterministic id", id1)
	}

	n.UpdatedAt = base.Add(time.Minute)
	id2, err := m.PublishNote(ctx, "alice", n)
	if err != nil {
		t.Fatalf("PublishNote: %v", err)
	}
	if id1 == id2 {
		t.Fatal("new version must get a new event id")
	}

	notes := m.Notes()
	if len(notes) != 1 {
		t.Fatalf("stored %d events, want 1", len(notes))
	}
	got := notes[0]
	if got.EventID != id2 {
		t.Errorf("EventID = %q, want %q", got.EventID, id2)
	}
	if got.Note.Embedding != nil || got.Note.RemoteSyncID != "" {
		t.Errorf("payload leaked local fields: %+v", got.Note)
	}
	if got.EmbeddingTag != "[0.6,0.8]" {
		t.Errorf("EmbeddingTag = %q", got.EmbeddingTag)
	}
}

func TestMemory_FetchNotesSince(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := now
	m := NewMemory(WithMemoryClock(func() time.Time { return clock }))
	ctx := context.Background()

	if _, err := m.PublishNote(ctx, "alice", sampleNote("a", now)); err != nil {
		t.Fatal(err)
	}
	clock = now.Add(time.Hour)
	if _, err := m.PublishNote(ctx, "bob", sampleNote("b", now)); err != nil {
		t.Fatal(err)
	}

	all, err := m.FetchNotesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("FetchNotesSince: %v", err)
	}
	if len(all) != 2 || all[0].Note.ID != "a" || all[1].Note.ID != "b" {
		t.Fatalf("unexpected order: %+v", all)
	}

	recent, err := m.FetchNotesSince(ctx, now.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Author != "bob" {
		t.Fatalf("since filter: %+v", recent)
	}
}

func TestMemory_PublishDeletionIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	eventID, err := m.PublishNote(ctx, "alice", sampleNote("n1", time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	first, err := m.PublishDeletion(ctx, "alice", eventID)
	if err != nil {
		t.Fatalf("PublishDeletion: %v", err)
	}
	second, err := m.PublishDeletion(ctx, "alice", eventID)
	if err != nil {
		t.Fatalf("PublishDeletion again: %v", err)
	}
	if first != second {
		t.Errorf("ids differ: %q vs %q", first, second)
	}
	if len(m.Notes()) != 0 {
		t.Error("deleted note event still stored")
	}
	dels, err := m.FetchDeletionsSince(ctx, "alice", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(dels) != 1 || dels[0].RemoteID != eventID {
		t.Fatalf("deletions = %+v", dels)
	}
}

func TestMemory_FailuresAreTransportErrors(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.FailOn(MethodPublishNote, errors.New("rate limited"))
	_, err := m.PublishNote(ctx, "alice", sampleNote("n1", time.Now()))
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	m.FailOn(MethodPublishNote, nil)
	if _, err := m.PublishNote(ctx, "alice", sampleNote("n1", time.Now())); err != nil {
		t.Fatalf("after clearing failure: %v", err)
	}

	m.SetOffline(true)
	if err := m.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping offline = %v", err)
	}
}

func TestMemory_OntologyAndContactsAbsent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ro, err := m.FetchOntology(ctx, "alice")
	if err != nil || ro != nil {
		t.Fatalf("FetchOntology = %v, %v; want nil, nil", ro, err)
	}
	cl, err := m.FetchContacts(ctx, "alice")
	if err != nil || cl != nil {
		t.Fatalf("FetchContacts = %v, %v; want nil, nil", cl, err)
	}
}

func TestRemoteNote_Validate(t *testing.T) {
	good := RemoteNote{EventID: "e1", Note: sampleNote("n1", time.Now())}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid note rejected: %v", err)
	}

	noID := good
	noID.Note.ID = ""
	if err := noID.Validate(); err == nil {
		t.Error("missing note id accepted")
	}

	badStatus := good
	badStatus.Note.Status = "archived"
	if err := badStatus.Validate(); err == nil {
		t.Error("unknown status accepted")
	}
}

func TestPool_PublishSucceedsIfAnyRelayAccepts(t *testing.T) {
	ctx := context.Background()
	up := NewMemory()
	down := NewMemory()
	down.SetOffline(true)
	pool := NewPool(nil, down, up)

	n := sampleNote("n1", time.Now())
	id, err := pool.PublishNote(ctx, "alice", n)
	if err != nil {
		t.Fatalf("PublishNote: %v", err)
	}
	if id != NoteEventID("alice", n) {
		t.Errorf("id = %q", id)
	}
	if len(up.Notes()) != 1 {
		t.Error("healthy relay did not receive the event")
	}

	up.SetOffline(true)
	if _, err := pool.PublishNote(ctx, "alice", n); !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("all relays down: err = %v", err)
	}
	if pool.Reachable(ctx) {
		t.Error("Reachable = true with every relay offline")
	}
}

func TestPool_FetchMergesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r1 := NewMemory(WithMemoryClock(fixedClock(base)))
	r2 := NewMemory(WithMemoryClock(fixedClock(base)))
	pool := NewPool(nil, r1, r2)

	shared := sampleNote("shared", base)
	if _, err := pool.PublishNote(ctx, "alice", shared); err != nil {
		t.Fatal(err)
	}
	if _, err := r2.PublishNote(ctx, "bob", sampleNote("only-r2", base)); err != nil {
		t.Fatal(err)
	}

	notes, err := pool.FetchNotesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("FetchNotesSince: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2 after dedup", len(notes))
	}

	r1.SetOffline(true)
	notes, err = pool.FetchNotesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("one relay down should not fail the fetch: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notes from surviving relay", len(notes))
	}
}

func TestPool_FetchOntologyPicksNewest(t *testing.T) {
	ctx := context.Background()
	r1, r2 := NewMemory(), NewMemory()
	pool := NewPool(nil, r1, r2)

	older := models.NewOntologyTree()
	older.UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := models.NewOntologyTree()
	newer.UpdatedAt = older.UpdatedAt.Add(time.Hour)
	newer.Nodes["ai"] = &models.OntologyNode{ID: "ai", Label: "AI"}
	newer.RootIDs = []string{"ai"}

	if _, err := r1.PublishOntology(ctx, "alice", newer); err != nil {
		t.Fatal(err)
	}
	if _, err := r2.PublishOntology(ctx, "alice", older); err != nil {
		t.Fatal(err)
	}

	ro, err := pool.FetchOntology(ctx, "alice")
	if err != nil {
		t.Fatalf("FetchOntology: %v", err)
	}
	if ro == nil || !ro.Tree.UpdatedAt.Equal(newer.UpdatedAt) {
		t.Fatalf("picked %+v, want newest tree", ro)
	}
}

func TestWSClient_RoundTrip(t *testing.T) {
	backend := NewMemory()
	srv := httptest.NewServer(NewHandler(backend, nil))
	defer srv.Close()

	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), 5*time.Second, nil)
	defer client.Close()
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	n := sampleNote("n1", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	id, err := client.PublishNote(ctx, "alice", n)
	if err != nil {
		t.Fatalf("PublishNote: %v", err)
	}
	if id != NoteEventID("alice", n) {
		t.Errorf("id = %q", id)
	}

	notes, err := client.FetchNotesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("FetchNotesSince: %v", err)
	}
	if len(notes) != 1 || notes[0].Note.Title != n.Title {
		t.Fatalf("notes = %+v", notes)
	}

	ro, err := client.FetchOntology(ctx, "alice")
	if err != nil || ro != nil {
		t.Fatalf("FetchOntology = %v, %v; want nil, nil", ro, err)
	}

	backend.FailOn(MethodPublishDeletion, errors.New("rejected"))
	if _, err := client.PublishDeletion(ctx, "alice", id); !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("relay error not surfaced as transport error: %v", err)
	}

	// The connection survives a relay-side error.
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping after error: %v", err)
	}
}

func TestWSClient_DialFailure(t *testing.T) {
	client := NewWSClient("ws://127.0.0.1:1", time.Second, nil)
	err := client.Ping(context.Background())
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}
