package store

import (
	"context"

	"github.com/google/uuid"
)

// FilterOperator names a comparison a metadata filter applies.
type FilterOperator string

const (
	OpEquals   FilterOperator = "equals"
	OpIn       FilterOperator = "in"
	OpContains FilterOperator = "contains"
	OpRange    FilterOperator = "range"
)

// MetadataFilter is one typed predicate routed into the store's RPC
// parameter slots by field type.
type MetadataFilter struct {
	FieldName string
	Operator  FilterOperator
	Values    []string
}

// SearchFilters narrows a vector search by database, content type, date
// range, and arbitrary typed metadata predicates.
type SearchFilters struct {
	DatabaseIDs     []string
	ContentTypes    []ContentType
	DateFrom        *string
	DateTo          *string
	MetadataFilters []MetadataFilter
}

// ChunkMatch is one row returned by a vector-search stored procedure.
type ChunkMatch struct {
	Chunk                DocumentChunk
	Document             Document
	ContentSimilarity    float64
	ContextualSimilarity float64
	CombinedScore        float64
}

// ChunkWithContext is the result of get_chunk_with_context.
type ChunkWithContext struct {
	Main DocumentChunk
	Prev *DocumentChunk
	Next *DocumentChunk
}

// Store is the persistence capability the core depends on: table CRUD over
// the §3 data model plus the four named stored procedures. Every
// implementation (Postgres, in-memory) must be safe for concurrent use.
type Store interface {
	DatabaseStore
	DocumentStore
	ChunkStore
	MetadataStore
	SessionStore
	SearchStore

	// Close releases any held resources (connection pools, etc).
	Close()
}

// DatabaseStore manages NotionDatabase registrations.
type DatabaseStore interface {
	UpsertDatabase(ctx context.Context, db NotionDatabase) error
	GetDatabase(ctx context.Context, databaseID string) (NotionDatabase, error)
	ListActiveDatabases(ctx context.Context) ([]NotionDatabase, error)
}

// DocumentStore manages Document rows.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc Document) (uuid.UUID, error)
	GetDocumentByNotionPageID(ctx context.Context, notionPageID string) (Document, bool, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	SetDocumentStatus(ctx context.Context, id uuid.UUID, status ProcessingStatus) error
	DeleteDocumentByNotionPageID(ctx context.Context, notionPageID string) error
}

// ChunkStore manages DocumentChunk rows, including the two-pass link update.
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []DocumentChunk) ([]uuid.UUID, error)
	// LinkChunks fills prev_chunk_id/next_chunk_id for all chunks of a
	// document by ascending chunk_order, after every chunk has been
	// inserted (the two-pass pattern required by spec §4.E).
	LinkChunks(ctx context.Context, documentID uuid.UUID) error
	DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) error
	GetChunk(ctx context.Context, id uuid.UUID) (DocumentChunk, error)
}

// MetadataStore manages DocumentMetadata rows.
type MetadataStore interface {
	UpsertMetadata(ctx context.Context, rows []DocumentMetadata) error
	DeleteMetadataByDocument(ctx context.Context, documentID uuid.UUID) error
}

// SessionStore manages ChatSession and ChatMessage rows.
type SessionStore interface {
	CreateSession(ctx context.Context, session ChatSession) (ChatSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (ChatSession, error)
	GetActiveSession(ctx context.Context) (ChatSession, bool, error)
	UpdateSession(ctx context.Context, session ChatSession) error
	ListIdleCandidates(ctx context.Context, idleSince int64) ([]ChatSession, error)

	AppendMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]ChatMessage, error)
}

// SearchStore exposes the four named stored procedures.
type SearchStore interface {
	// MatchChunks is the baseline cosine search over embedding.
	MatchChunks(ctx context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error)
	// MatchContextualChunks blends content and contextual similarity.
	MatchContextualChunks(ctx context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error)
	// GetChunkWithContext resolves a chunk's neighbors.
	GetChunkWithContext(ctx context.Context, chunkID uuid.UUID, includeAdjacent bool) (ChunkWithContext, error)
	// EnhancedMetadataSearch is MatchContextualChunks plus typed metadata
	// predicates.
	EnhancedMetadataSearch(ctx context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error)
}
