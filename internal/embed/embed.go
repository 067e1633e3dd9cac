// Package embed converts text into embedding vectors, either via a remote
// provider or deterministically for tests and dry-run ingestion.
package embed

import (
	"context"
)

// Embedder converts text to embedding vectors.
type Embedder interface {
	// EmbedOne embeds a single string.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds a slice of strings, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Model reports the embedding model identifier in use.
	Model() string
	// Dimension reports the embedding dimensionality, or 0 if unknown.
	Dimension() int
}
