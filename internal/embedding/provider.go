// Package embedding turns note text into vectors for similarity matching.
package embedding

import (
	"context"
	"strings"

	"github.com/starford/relaynote/internal/models"
)

// Provider produces vector embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NoteText returns the text embedded for a note: title, tags, then content.
func NoteText(n models.Note) string {
	var b strings.Builder
	b.WriteString(n.Title)
	if len(n.Tags) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(n.Tags, " "))
	}
	if n.Content != "" {
		b.WriteString("\n")
		b.WriteString(n.Content)
	}
	return b.String()
}
