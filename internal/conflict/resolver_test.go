package conflict

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/relaynote/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestResolve_StrictlyGreaterWins(t *testing.T) {
	older := models.Note{ID: "a", UpdatedAt: t0}
	newer := models.Note{ID: "b", UpdatedAt: t0.Add(time.Second)}

	if got := Resolve(older, newer); got != KeepRemote {
		t.Errorf("Resolve(older, newer) = %v, want keep_remote", got)
	}
	if got := Resolve(newer, older); got != KeepLocal {
		t.Errorf("Resolve(newer, older) = %v, want keep_local", got)
	}
}

func TestResolve_TieKeepsFirst(t *testing.T) {
	a := models.Note{ID: "a", UpdatedAt: t0}
	b := models.Note{ID: "b", UpdatedAt: t0}
	if got := Resolve(a, b); got != KeepLocal {
		t.Errorf("tie = %v, want keep_local", got)
	}
	if got := Resolve(b, a); got != KeepLocal {
		t.Errorf("reversed tie = %v, want keep_local", got)
	}
}

func TestResolve_Ontology(t *testing.T) {
	local := models.OntologyTree{UpdatedAt: t0.Add(time.Minute)}
	remote := models.OntologyTree{UpdatedAt: t0}
	if got := Resolve(local, remote); got != KeepLocal {
		t.Errorf("got %v", got)
	}
	if got := ResolveOntology(nil, &remote); got != KeepRemote {
		t.Errorf("nil local = %v, want keep_remote", got)
	}
}

func TestResolveNote_AbsentLocalSanitizes(t *testing.T) {
	remote := models.Note{
		ID:        "n",
		Content:   `<p onclick="x()">hi</p><script>alert(1)</script>`,
		UpdatedAt: t0,
	}
	res := ResolveNote(nil, remote, NewHTMLSanitizer())
	if res.Decision != KeepRemote {
		t.Fatalf("decision = %v", res.Decision)
	}
	if strings.Contains(res.Note.Content, "script") || strings.Contains(res.Note.Content, "onclick") {
		t.Errorf("content not sanitized: %q", res.Note.Content)
	}
	if !strings.Contains(res.Note.Content, "<p>hi</p>") {
		t.Errorf("safe markup lost: %q", res.Note.Content)
	}
	if remote.Content == res.Note.Content {
		t.Error("input note must not be modified")
	}
}

func TestResolveNote_LocalNewerUntouched(t *testing.T) {
	local := models.Note{ID: "n", Content: "<script>local</script>", UpdatedAt: t0.Add(10 * time.Second)}
	remote := models.Note{ID: "n", Content: "remote", UpdatedAt: t0}
	res := ResolveNote(&local, remote, NewHTMLSanitizer())
	if res.Decision != KeepLocal || res.Note.Content != local.Content {
		t.Errorf("res = %+v", res)
	}
}

func TestSanitize_PlainTextUnchanged(t *testing.T) {
	s := NewHTMLSanitizer()
	if got := s.Sanitize("just text"); got != "just text" {
		t.Errorf("got %q", got)
	}
}
