package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is a deterministic offline provider. Each token is hashed into a
// bucket of a fixed-length vector, so texts sharing words get similar
// vectors. It needs no model and is meant for development and tests.
type Hash struct {
	dimensions int
}

// NewHash returns a Hash provider producing vectors of the given size.
func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &Hash{dimensions: dimensions}
}

// Embed returns a unit-length bag-of-words vector for text.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	emb := make([]float32, h.dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dimensions))
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		emb[idx] += sign
	}
	// Normalize to unit length for cosine similarity
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (h *Hash) Dimensions() int {
	return h.dimensions
}
