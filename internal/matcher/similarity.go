// Package matcher scores how related two notes are, through shared ontology
// tags and through embedding similarity.
package matcher

import (
	"math"
	"sort"
	"strings"

	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/ontology"
)

// TagSimilarity is the Jaccard index of the semantic expansions of a and b.
// It returns 0 when both expansions are empty.
func TagSimilarity(a, b []string, tree *models.OntologyTree) float64 {
	inter, union := tagOverlap(a, b, tree)
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tagOverlap(a, b []string, tree *models.OntologyTree) (inter, union int) {
	ea := ontology.ExpandAll(tree, a)
	eb := ontology.ExpandAll(tree, b)
	for t := range ea {
		if _, ok := eb[t]; ok {
			inter++
		}
	}
	return inter, len(ea) + len(eb) - inter
}

// SharedTags returns the literal tags present in both lists, compared
// ignoring case and a leading '#', in a's order and casing, at most
// models.MaxSharedTags of them.
func SharedTags(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, t := range b {
		inB[ontology.Normalize(t)] = struct{}{}
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, t := range a {
		n := ontology.Normalize(t)
		if n == "" {
			continue
		}
		if _, ok := inB[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, strings.TrimSpace(t))
		if len(out) == models.MaxSharedTags {
			break
		}
	}
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b. It is 0
// when either vector is empty or zero, or when their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push identical vectors just past 1.
	return math.Max(-1, math.Min(1, sim))
}

// Scored is a candidate together with its similarity to the target.
type Scored struct {
	Note       models.Note
	Similarity float64
}

// FindSimilar ranks candidates by embedding similarity to target. The target
// itself (by id) and candidates without an embedding are skipped; the rest
// are kept when their similarity is at least threshold, most similar first,
// ties in candidate order.
func FindSimilar(target models.Note, candidates []models.Note, threshold float64) []Scored {
	out := []Scored{}
	if len(target.Embedding) == 0 {
		return out
	}
	for _, c := range candidates {
		if c.ID == target.ID || len(c.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(target.Embedding, c.Embedding)
		if sim >= threshold {
			out = append(out, Scored{Note: c, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}
