package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// Ollama embeds text through a local or remote Ollama server.
type Ollama struct {
	client     *api.Client
	model      string
	dimensions int
}

// OllamaOption configures an Ollama provider.
type OllamaOption func(*Ollama)

// WithOllamaClient replaces the API client, mainly for tests.
func WithOllamaClient(client *api.Client) OllamaOption {
	return func(o *Ollama) {
		o.client = client
	}
}

// NewOllama returns a provider for model served at host. An empty host falls
// back to OLLAMA_HOST and the Ollama defaults.
func NewOllama(host, model string, dimensions int, opts ...OllamaOption) (*Ollama, error) {
	if model == "" {
		return nil, errors.New("embedding: ollama model is required")
	}
	o := &Ollama{model: model, dimensions: dimensions}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		if host == "" {
			client, err := api.ClientFromEnvironment()
			if err != nil {
				return nil, fmt.Errorf("embedding: ollama client: %w", err)
			}
			o.client = client
		} else {
			base, err := url.Parse(host)
			if err != nil {
				return nil, fmt.Errorf("embedding: ollama host: %w", err)
			}
			o.client = api.NewClient(base, &http.Client{Timeout: 30 * time.Second})
		}
	}
	return o, nil
}

// Embed returns the embedding of text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("embedding: ollama returned no embedding")
	}
	vec := resp.Embeddings[0]
	if o.dimensions > 0 && len(vec) != o.dimensions {
		return nil, fmt.Errorf("embedding: ollama returned %d dimensions, want %d", len(vec), o.dimensions)
	}
	return vec, nil
}

// Dimensions returns the configured embedding dimension, or 0 when the
// model decides.
func (o *Ollama) Dimensions() int {
	return o.dimensions
}
