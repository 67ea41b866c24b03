package search

import (
	"testing"

	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/ontology"
)

func tree(t *testing.T) *models.OntologyTree {
	t.Helper()
	tr := models.NewOntologyTree()
	_ = ontology.AddNode(tr, models.OntologyNode{ID: "ai", Label: "#AI"})
	_ = ontology.AddNode(tr, models.OntologyNode{ID: "nlp", Label: "#NLP", ParentID: "ai"})
	return tr
}

func ids(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func corpus() []models.Note {
	return []models.Note{
		{ID: "1", Title: "Cooking pasta", Content: "boil water", Status: models.StatusDraft, Tags: []string{"food"}},
		{ID: "2", Title: "Transformers", Content: "attention for nlp", Status: models.StatusPublished, Tags: []string{"#NLP"}, FolderID: "f1"},
		{ID: "3", Title: "NLP survey", Content: "", Status: models.StatusPrivate, Tags: []string{"#AI"},
			Values: models.Attrs{{Key: "Stage", Value: "Review"}}},
		{ID: "4", Title: "Groceries", Content: "buy nlp book", Status: models.StatusDraft,
			Fields: models.Attrs{{Key: "store", Value: "Corner Shop"}}},
	}
}

func TestSearch_EmptyQueryPassThrough(t *testing.T) {
	got := Search("", tree(t), Filters{}, corpus(), Options{})
	want := []string{"1", "2", "3", "4"}
	if g := ids(got); len(g) != 4 || g[0] != want[0] || g[3] != want[3] {
		t.Errorf("got %v, want %v", g, want)
	}
}

func TestSearch_Scoring(t *testing.T) {
	got := ids(Search("nlp", tree(t), Filters{}, corpus(), Options{}))
	// 3: title 2 + tag 1.5 = 3.5
	// 2: content 1 + tag 1.5 = 2.5
	// 4: content 1
	want := []string{"3", "2", "4"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSearch_QueryExpandsThroughOntology(t *testing.T) {
	got := ids(Search("#ai", tree(t), Filters{}, corpus(), Options{}))
	// #ai expands to {ai, nlp}: notes 2 and 3 carry a tag in it.
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestSearch_Filters(t *testing.T) {
	tr := tree(t)
	c := corpus()

	if got := ids(Search("", tr, Filters{Status: "PUBLISHED"}, c, Options{})); len(got) != 1 || got[0] != "2" {
		t.Errorf("status filter = %v", got)
	}
	if got := ids(Search("", tr, Filters{FolderID: "F1"}, c, Options{})); len(got) != 1 || got[0] != "2" {
		t.Errorf("folder filter = %v", got)
	}
	if got := ids(Search("", tr, Filters{Tag: "ai"}, c, Options{})); len(got) != 2 {
		t.Errorf("expanded tag filter = %v", got)
	}
	if got := ids(Search("", tr, Filters{Key: "stage", Value: "rev"}, c, Options{})); len(got) != 1 || got[0] != "3" {
		t.Errorf("values filter = %v", got)
	}
	if got := ids(Search("", tr, Filters{Key: "STORE", Value: "corner"}, c, Options{})); len(got) != 1 || got[0] != "4" {
		t.Errorf("fields filter = %v", got)
	}
	if got := ids(Search("pasta", tr, Filters{Status: models.StatusPublished}, c, Options{})); len(got) != 0 {
		t.Errorf("filter must exclude before scoring: %v", got)
	}
}

func TestSearch_AttrHit(t *testing.T) {
	got := ids(Search("corner", tree(t), Filters{}, corpus(), Options{}))
	if len(got) != 1 || got[0] != "4" {
		t.Errorf("got %v", got)
	}
}

func TestSearch_EmbeddingBoost(t *testing.T) {
	c := []models.Note{
		{ID: "a", Title: "alpha", Embedding: []float32{0, 1}},
		{ID: "b", Title: "beta", Embedding: []float32{1, 0}},
	}
	opts := Options{AIEnabled: true, Sensitivity: 0.7, QueryEmbedding: []float32{1, 0}}

	got := ids(Search("zzz", nil, Filters{}, c, opts))
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("got %v, want [b]", got)
	}

	opts.AIEnabled = false
	if got := Search("zzz", nil, Filters{}, c, opts); len(got) != 0 {
		t.Errorf("AI disabled must not score embeddings: %v", ids(got))
	}
}
