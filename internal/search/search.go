// Package search ranks notes by combining structured filters, text matches,
// ontology tags, and embedding similarity.
package search

import (
	"sort"
	"strings"

	"github.com/starford/relaynote/internal/matcher"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/ontology"
)

// Score weights.
const (
	weightTitle     = 2.0
	weightContent   = 1.0
	weightTag       = 1.5
	weightAttr      = 0.5
	weightEmbedding = 2.0
)

// Filters are hard constraints; a note failing any of them is excluded.
// Empty fields do not filter.
type Filters struct {
	Status   models.Status `json:"status,omitempty"`
	FolderID string        `json:"folder_id,omitempty"`
	Tag      string        `json:"tag,omitempty"`
	Key      string        `json:"key,omitempty"`
	Value    string        `json:"value,omitempty"`
}

// Options carry the optional embedding signal.
type Options struct {
	AIEnabled      bool
	Sensitivity    float64
	QueryEmbedding []float32
}

// Search returns the notes of corpus that pass filters, ranked against
// query. With an empty query every passing note is returned in corpus order.
func Search(query string, tree *models.OntologyTree, f Filters, corpus []models.Note, opts Options) []models.Note {
	q := strings.ToLower(strings.TrimSpace(query))

	var filterTags map[string]struct{}
	if strings.TrimSpace(f.Tag) != "" {
		filterTags = ontology.Expand(tree, f.Tag)
	}

	type scored struct {
		note  models.Note
		score float64
	}
	var kept []scored
	for _, n := range corpus {
		if !passes(n, f, filterTags) {
			continue
		}
		if q == "" {
			kept = append(kept, scored{note: n})
			continue
		}
		s := score(n, q, tree, opts)
		if s <= 0 {
			continue
		}
		kept = append(kept, scored{note: n, score: s})
	}

	if q != "" {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].score > kept[j].score
		})
	}

	out := make([]models.Note, len(kept))
	for i, k := range kept {
		out[i] = k.note
	}
	return out
}

func passes(n models.Note, f Filters, filterTags map[string]struct{}) bool {
	if f.Status != "" && !strings.EqualFold(string(n.Status), string(f.Status)) {
		return false
	}
	if f.FolderID != "" && !strings.EqualFold(n.FolderID, f.FolderID) {
		return false
	}
	if filterTags != nil {
		hit := false
		for _, t := range n.Tags {
			if _, ok := filterTags[ontology.Normalize(t)]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.Key != "" || f.Value != "" {
		if !attrMatches(n.Values, f.Key, f.Value) && !attrMatches(n.Fields, f.Key, f.Value) {
			return false
		}
	}
	return true
}

// attrMatches reports whether attrs holds key (case-insensitive) with a value
// containing value. An empty key matches any key.
func attrMatches(attrs models.Attrs, key, value string) bool {
	wantKey := models.NormalizeKey(key)
	wantVal := strings.ToLower(value)
	for _, kv := range attrs {
		if wantKey != "" && models.NormalizeKey(kv.Key) != wantKey {
			continue
		}
		if strings.Contains(strings.ToLower(kv.Value), wantVal) {
			return true
		}
	}
	return false
}

func score(n models.Note, q string, tree *models.OntologyTree, opts Options) float64 {
	var s float64
	if strings.Contains(strings.ToLower(n.Title), q) {
		s += weightTitle
	}
	if strings.Contains(strings.ToLower(n.Content), q) {
		s += weightContent
	}

	expanded := ontology.Expand(tree, q)
	for _, t := range n.Tags {
		if _, ok := expanded[ontology.Normalize(t)]; ok {
			s += weightTag
			break
		}
	}

	if attrHit(n.Values, q) || attrHit(n.Fields, q) {
		s += weightAttr
	}

	if opts.AIEnabled && len(opts.QueryEmbedding) > 0 && len(n.Embedding) > 0 {
		sim := matcher.CosineSimilarity(opts.QueryEmbedding, n.Embedding)
		threshold := opts.Sensitivity
		if threshold <= 0 {
			threshold = models.DefaultSensitivity
		}
		if sim >= threshold {
			s += sim * weightEmbedding
		}
	}
	return s
}

func attrHit(attrs models.Attrs, q string) bool {
	for _, kv := range attrs {
		if strings.Contains(strings.ToLower(kv.Key), q) || strings.Contains(strings.ToLower(kv.Value), q) {
			return true
		}
	}
	return false
}
