package vault

import (
	"testing"

	"github.com/starford/relaynote/internal/models"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\nid: n-1\ntitle: Hello\ntags:\n  - go\n  - relay\nstatus: Published\nvalues:\n  priority: high\n  due: tomorrow\n---\n# Ignored heading\nBody with #inline and #go tags.\n")
	doc := Parse("notes/hello.md", input)

	if doc.ID != "n-1" {
		t.Errorf("id = %q", doc.ID)
	}
	if doc.Title != "Hello" {
		t.Errorf("title = %q, want %q", doc.Title, "Hello")
	}
	if doc.Status != models.StatusPublished {
		t.Errorf("status = %q", doc.Status)
	}
	want := []string{"go", "relay", "inline"}
	if len(doc.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", doc.Tags, want)
	}
	for i := range want {
		if doc.Tags[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, doc.Tags[i], want[i])
		}
	}
	if len(doc.Values) != 2 || doc.Values[0].Key != "priority" || doc.Values[1].Key != "due" {
		t.Errorf("values = %v, want ordered pairs", doc.Values)
	}
	if doc.Folder != "notes" {
		t.Errorf("folder = %q, want directory fallback", doc.Folder)
	}
	if doc.Body != "# Ignored heading\nBody with #inline and #go tags.\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_Fallbacks(t *testing.T) {
	doc := Parse("Daily Log.md", []byte("Just text.\n"))
	if doc.Title != "Daily Log" {
		t.Errorf("title = %q, want file name", doc.Title)
	}
	if doc.ID != NoteID("Daily Log.md") {
		t.Errorf("id = %q, want path derived id", doc.ID)
	}
	if doc.Folder != "" || doc.Status != "" {
		t.Errorf("folder = %q status = %q, want empty", doc.Folder, doc.Status)
	}

	doc = Parse("h.md", []byte("# Heading Title\ntext"))
	if doc.Title != "Heading Title" {
		t.Errorf("title = %q, want first heading", doc.Title)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := "---\n: invalid: yaml: {{{\n---\nBody\n"
	doc := Parse("bad.md", []byte(input))
	if doc.Body != input {
		t.Errorf("body = %q, want whole file", doc.Body)
	}
	if doc.Title != "bad" {
		t.Errorf("title = %q", doc.Title)
	}
}

func TestParse_ScalarTagsAndUnknownStatus(t *testing.T) {
	doc := Parse("a.md", []byte("---\ntags: ai, NLP , ai\nstatus: archived\nfolder: /Work/Research/\n---\nx"))
	if len(doc.Tags) != 2 || doc.Tags[0] != "ai" || doc.Tags[1] != "NLP" {
		t.Errorf("tags = %v", doc.Tags)
	}
	if doc.Status != "" {
		t.Errorf("status = %q, want empty for unknown value", doc.Status)
	}
	if doc.Folder != "Work/Research" {
		t.Errorf("folder = %q", doc.Folder)
	}
}

func TestNoteIDStable(t *testing.T) {
	if NoteID("a/b.md") != NoteID("a/b.md") {
		t.Fatal("id not deterministic")
	}
	if NoteID("a/b.md") == NoteID("a/c.md") {
		t.Fatal("different paths share an id")
	}
}

func TestSafePath(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"../escape.md", "a/../../escape.md", "/etc/passwd"} {
		if _, err := fs.safePath(p); err == nil {
			t.Errorf("safePath(%q) accepted", p)
		}
	}
	if _, err := fs.safePath("sub/ok.md"); err != nil {
		t.Errorf("safePath rejected a vault path: %v", err)
	}
}
