package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// MatchChunks is the baseline cosine search over document_chunks.embedding.
func (p *Postgres) MatchChunks(ctx context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error) {
	qv := vectorArg(queryEmbedding)
	args := []any{qv, matchThreshold}
	filterSQL, args := buildFilterClause(filters, args, len(args))
	args = append(args, matchCount)

	query := fmt.Sprintf(`
SELECT %s, 1 - (c.embedding <=> $1) AS content_similarity
FROM document_chunks c JOIN documents d ON d.id = c.document_id
WHERE (1 - (c.embedding <=> $1)) >= $2%s
ORDER BY content_similarity DESC
LIMIT $%d`, chunkMatchJoinColumns, filterSQL, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: match_chunks: %v", ragerrors.StoreFailure, err)
	}
	defer rows.Close()

	var out []ChunkMatch
	for rows.Next() {
		m, err := scanChunkMatch(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// MatchContextualChunks blends content and contextual similarity per
// spec §6: combined_score = 0.7*contextual + 0.3*content, computed by the
// store (here, in the SQL projection) and used for ordering.
func (p *Postgres) MatchContextualChunks(ctx context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error) {
	qv := vectorArg(queryEmbedding)
	args := []any{qv, matchThreshold}
	filterSQL, args := buildFilterClause(filters, args, len(args))
	args = append(args, matchCount)

	query := fmt.Sprintf(`
SELECT %s,
    1 - (c.embedding <=> $1) AS content_similarity,
    1 - (c.contextual_embedding <=> $1) AS contextual_similarity
FROM document_chunks c JOIN documents d ON d.id = c.document_id
WHERE (0.7 * (1 - (c.contextual_embedding <=> $1)) + 0.3 * (1 - (c.embedding <=> $1))) >= $2%s
ORDER BY (0.7 * (1 - (c.contextual_embedding <=> $1)) + 0.3 * (1 - (c.embedding <=> $1))) DESC
LIMIT $%d`, chunkMatchJoinColumns, filterSQL, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: match_contextual_chunks: %v", ragerrors.StoreFailure, err)
	}
	defer rows.Close()

	var out []ChunkMatch
	for rows.Next() {
		m, err := scanChunkMatch(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// EnhancedMetadataSearch is MatchContextualChunks plus typed metadata
// predicates against document_metadata, one EXISTS clause per filter so an
// unsatisfied predicate excludes the whole document.
func (p *Postgres) EnhancedMetadataSearch(ctx context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error) {
	matches, err := p.MatchContextualChunks(ctx, queryEmbedding, filters, matchThreshold, matchCount*4)
	if err != nil {
		return nil, err
	}
	if len(filters.MetadataFilters) == 0 {
		if matchCount > 0 && len(matches) > matchCount {
			matches = matches[:matchCount]
		}
		return matches, nil
	}

	var out []ChunkMatch
	for _, m := range matches {
		ok, err := p.documentSatisfiesMetadata(ctx, m.Document.ID, filters.MetadataFilters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
		if matchCount > 0 && len(out) >= matchCount {
			break
		}
	}
	return out, nil
}

func (p *Postgres) documentSatisfiesMetadata(ctx context.Context, documentID uuid.UUID, filters []MetadataFilter) (bool, error) {
	for _, f := range filters {
		var clause string
		var args []any
		switch f.Operator {
		case OpEquals:
			clause = `field_name = $2 AND text_value = $3`
			args = []any{documentID, f.FieldName, valueOrEmpty(f.Values)}
		case OpIn:
			clause = `field_name = $2 AND text_value = ANY($3)`
			args = []any{documentID, f.FieldName, f.Values}
		case OpContains:
			clause = `field_name = $2 AND array_value && $3`
			args = []any{documentID, f.FieldName, f.Values}
		case OpRange:
			clause = `field_name = $2 AND (number_value IS NOT NULL OR date_value IS NOT NULL)`
			args = []any{documentID, f.FieldName}
		default:
			continue
		}
		var exists bool
		query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM document_metadata WHERE document_id = $1 AND %s)`, clause)
		if err := p.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
			return false, fmt.Errorf("%w: metadata filter: %v", ragerrors.StoreFailure, err)
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

func valueOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// GetChunkWithContext resolves a chunk's neighbors via prev_chunk_id/next_chunk_id.
func (p *Postgres) GetChunkWithContext(ctx context.Context, chunkID uuid.UUID, includeAdjacent bool) (ChunkWithContext, error) {
	main, err := p.GetChunk(ctx, chunkID)
	if err != nil {
		return ChunkWithContext{}, err
	}
	result := ChunkWithContext{Main: main}
	if !includeAdjacent {
		return result, nil
	}
	if main.PrevChunkID != nil {
		prev, err := p.GetChunk(ctx, *main.PrevChunkID)
		if err == nil {
			result.Prev = &prev
		}
	}
	if main.NextChunkID != nil {
		next, err := p.GetChunk(ctx, *main.NextChunkID)
		if err == nil {
			result.Next = &next
		}
	}
	return result, nil
}
