package store

import "context"

// VectorMatch is one ranked hit from a VectorIndex.Search call.
type VectorMatch struct {
	ChunkID string
	Score   float64
}

// VectorIndex is an optional external vector-similarity backend that can
// stand in for a Store's own vector search (e.g. pgvector's `<=>` operator)
// when `store.backend` in config selects it. Chunk rows and their metadata
// still live in the Store; VectorIndex only answers "which chunk IDs are
// nearest to this vector."
type VectorIndex interface {
	Upsert(ctx context.Context, chunkID string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, chunkID string) error
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorMatch, error)
	Dimension() int
	Close() error
}
