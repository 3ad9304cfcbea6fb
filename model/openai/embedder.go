package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

// ErrNoEmbedding is returned when the API answers without a vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// EmbedderOptions configures an Embedder.
type EmbedderOptions struct {
	Model   openai.EmbeddingModel
	APIKey  string
	BaseURL string
}

// Embedder turns text into vectors with the OpenAI Embeddings API. It
// satisfies persona/pgvector.Embedder.
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder creates an Embedder using the official client.
func NewEmbedder(optFns ...func(o *EmbedderOptions)) *Embedder {
	opts := EmbedderOptions{Model: openai.EmbeddingModelTextEmbedding3Small}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := openai.NewClient(clientOptions(opts.APIKey, opts.BaseURL)...)
	return &Embedder{client: &client, model: opts.Model}
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoEmbedding
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
