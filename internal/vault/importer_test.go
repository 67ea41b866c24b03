package vault_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/noteservice"
	"github.com/starford/relaynote/internal/store"
	"github.com/starford/relaynote/internal/testutil"
	"github.com/starford/relaynote/internal/vault"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func importEnv(t *testing.T) (string, *vault.Importer, *store.DB) {
	t.Helper()
	dir, fs := testutil.TestVault(t)
	db := testutil.TestStore(t)
	svc := noteservice.NewService(db)
	return dir, vault.NewImporter(fs, svc, db, quietLogger()), db
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImporterSync(t *testing.T) {
	dir, im, db := importEnv(t)
	ctx := context.Background()

	writeFile(t, dir, "top.md", "# Top\nhello #go")
	writeFile(t, dir, "Work/Research/deep.md", "---\nid: deep-1\ntitle: Deep\nstatus: private\n---\nbody")
	writeFile(t, dir, ".obsidian/skip.md", "hidden")
	writeFile(t, dir, "notes.txt", "not markdown")

	res, err := im.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 2 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	top, err := db.GetNote(vault.NoteID("top.md"))
	if err != nil {
		t.Fatalf("top note: %v", err)
	}
	if top.Title != "Top" || len(top.Tags) != 1 || top.Tags[0] != "go" {
		t.Errorf("top = %+v", top)
	}
	if ok, _ := db.HasPendingOp(top.ID); !ok {
		t.Error("imported note not queued for sync")
	}

	deep, err := db.GetNote("deep-1")
	if err != nil {
		t.Fatalf("deep note: %v", err)
	}
	if deep.Status != models.StatusPrivate {
		t.Errorf("status = %q", deep.Status)
	}
	if ok, _ := db.HasPendingOp(deep.ID); ok {
		t.Error("private import queued for sync")
	}
	folder, err := db.GetFolder(deep.FolderID)
	if err != nil {
		t.Fatalf("folder: %v", err)
	}
	if folder.Name != "Research" || folder.ParentID == "" {
		t.Errorf("folder = %+v", folder)
	}
	folders, _ := db.ListFolders()
	if len(folders) != 2 {
		t.Errorf("folders = %d, want Work and Research", len(folders))
	}

	res, err = im.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 0 || res.Unchanged != 2 {
		t.Errorf("second sync = %+v", res)
	}
}

func TestImporterUpdateAndRemove(t *testing.T) {
	dir, im, db := importEnv(t)
	ctx := context.Background()

	writeFile(t, dir, "a.md", "first")
	if _, err := im.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	id := vault.NoteID("a.md")
	before, _ := db.GetNote(id)

	writeFile(t, dir, "a.md", "second")
	changed, err := im.ImportFile(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("changed file reported unchanged")
	}
	after, _ := db.GetNote(id)
	if after.Content != "second" || !after.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("after = %+v", after)
	}

	if err := os.Remove(filepath.Join(dir, "a.md")); err != nil {
		t.Fatal(err)
	}
	res, err := im.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := db.GetNote(id); err == nil {
		t.Error("note of removed file still stored")
	}
	flags, _ := db.FlagsWithPrefix("vault:")
	if len(flags) != 0 {
		t.Errorf("flags = %v", flags)
	}
}

func TestWatcherImportsNewFile(t *testing.T) {
	dir, im, db := importEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- im.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "live.md", "# Live\n")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetNote(vault.NoteID("live.md"))
		return err == nil
	}, "new file not imported by watcher")

	if err := os.Remove(filepath.Join(dir, "live.md")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetNote(vault.NoteID("live.md"))
		return err != nil
	}, "removed file still imported")

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
