package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// buildFilterClause appends database/content-type/date predicates shared by
// MatchChunks and MatchContextualChunks (and so EnhancedMetadataSearch),
// starting parameter numbering at argOffset+1, and
// returns the updated argument slice alongside the SQL fragment.
func buildFilterClause(filters SearchFilters, args []any, argOffset int) (string, []any) {
	var clauses []string
	if len(filters.DatabaseIDs) > 0 {
		argOffset++
		clauses = append(clauses, fmt.Sprintf("d.notion_database_id = ANY($%d)", argOffset))
		args = append(args, filters.DatabaseIDs)
	}
	if len(filters.ContentTypes) > 0 {
		argOffset++
		types := make([]string, len(filters.ContentTypes))
		for i, ct := range filters.ContentTypes {
			types[i] = string(ct)
		}
		clauses = append(clauses, fmt.Sprintf("d.content_type = ANY($%d)", argOffset))
		args = append(args, types)
	}
	if filters.DateFrom != nil {
		argOffset++
		clauses = append(clauses, fmt.Sprintf("d.notion_last_edited_time >= $%d", argOffset))
		args = append(args, *filters.DateFrom)
	}
	if filters.DateTo != nil {
		argOffset++
		clauses = append(clauses, fmt.Sprintf("d.notion_last_edited_time <= $%d", argOffset))
		args = append(args, *filters.DateTo)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// scanChunkMatch reads one row shaped like the chunk-and-owning-document
// join used by match_chunks/match_contextual_chunks/enhanced_metadata_search.
// When useContextual is false the row carries only content_similarity and
// contextual_similarity mirrors it (match_chunks has no separate contextual
// embedding column to compare against).
func scanChunkMatch(rows pgx.Rows, useContextual bool) (ChunkMatch, error) {
	var m ChunkMatch
	c, doc := &m.Chunk, &m.Document
	var hierarchyJSON, posJSON, propsJSON, metaJSON []byte
	var chunkType, contentType, status string

	dest := []any{
		&c.ID, &c.DocumentID, &c.ChunkOrder, &c.Content, &c.TokenCount, &c.ChunkContext, &c.ChunkSummary,
		&c.DocumentSection, &hierarchyJSON, &chunkType, &posJSON, &c.Embedding, &c.ContextualEmbedding,
		&c.PrevChunkID, &c.NextChunkID,
		&doc.ID, &doc.NotionPageID, &doc.Title, &doc.PageURL, &contentType, &status, &propsJSON, &metaJSON,
		&m.ContentSimilarity,
	}
	if useContextual {
		dest = append(dest, &m.ContextualSimilarity)
	}
	if err := rows.Scan(dest...); err != nil {
		return ChunkMatch{}, fmt.Errorf("%w: scan chunk match: %v", ragerrors.StoreFailure, err)
	}
	if !useContextual {
		m.ContextualSimilarity = m.ContentSimilarity
	}
	m.CombinedScore = 0.7*m.ContextualSimilarity + 0.3*m.ContentSimilarity

	c.ChunkType = ChunkType(chunkType)
	doc.ContentType = ContentType(contentType)
	doc.ProcessingStatus = ProcessingStatus(status)
	_ = json.Unmarshal(hierarchyJSON, &c.SectionHierarchy)
	_ = json.Unmarshal(posJSON, &c.ChunkPositionMetadata)
	_ = json.Unmarshal(propsJSON, &doc.NotionProperties)
	_ = json.Unmarshal(metaJSON, &doc.ExtractedMetadata)
	return m, nil
}

const chunkMatchJoinColumns = `
    c.id, c.document_id, c.chunk_order, c.content, c.token_count, c.chunk_context, c.chunk_summary,
    c.document_section, c.section_hierarchy, c.chunk_type, c.chunk_position_metadata, c.embedding, c.contextual_embedding,
    c.prev_chunk_id, c.next_chunk_id,
    d.id, d.notion_page_id, d.title, d.page_url, d.content_type, d.processing_status, d.notion_properties, d.extracted_metadata`
