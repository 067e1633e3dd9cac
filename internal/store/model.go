// Package store defines the persistence-facing data model and capability
// interfaces for the ingestion and retrieval core, plus Postgres and
// in-memory implementations.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ContentType tags a Document by the kind of page it was ingested from.
type ContentType string

const (
	ContentDocument      ContentType = "document"
	ContentMeeting       ContentType = "meeting"
	ContentProject       ContentType = "project"
	ContentDocumentation ContentType = "documentation"
	ContentNote          ContentType = "note"
	ContentBookmark      ContentType = "bookmark"
)

// ProcessingStatus tracks a Document's ingestion lifecycle.
type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// ChunkType tags a DocumentChunk by structural role within its document.
type ChunkType string

const (
	ChunkContent       ChunkType = "content"
	ChunkHeader        ChunkType = "header"
	ChunkSection       ChunkType = "section"
	ChunkNotes         ChunkType = "notes"
	ChunkHighlight     ChunkType = "highlight"
	ChunkDocumentation ChunkType = "documentation"
)

// SessionStatus tracks a ChatSession's lifecycle.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionConcluded SessionStatus = "concluded"
)

// MessageRole identifies the author of a ChatMessage.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// FieldDefinition describes one queryable field projected from a remote
// database's schema.
type FieldDefinition struct {
	Type       string `json:"type"`
	SourceName string `json:"source_name"`
	Filterable bool   `json:"filterable"`
}

// NotionDatabase is one row per remote database registration.
type NotionDatabase struct {
	DatabaseID      string                     `json:"database_id"`
	Name            string                     `json:"name"`
	NotionSchema    map[string]any             `json:"notion_schema"`
	FieldDefinitions map[string]FieldDefinition `json:"field_definitions"`
	QueryableFields []string                   `json:"queryable_fields"`
	IsActive        bool                       `json:"is_active"`
	LastSyncAt      *time.Time                 `json:"last_sync_at,omitempty"`
}

// Document is one row per remote page that has been ingested.
type Document struct {
	ID                   uuid.UUID         `json:"id"`
	NotionPageID         string            `json:"notion_page_id"`
	NotionDatabaseID     string            `json:"notion_database_id"`
	Title                string            `json:"title"`
	Content              string            `json:"content"`
	ContentEmbedding     *pgvector.Vector  `json:"content_embedding,omitempty"`
	SummaryEmbedding     *pgvector.Vector  `json:"summary_embedding,omitempty"`
	DocumentSummary      *string           `json:"document_summary,omitempty"`
	PageURL              string            `json:"page_url"`
	NotionCreatedTime    time.Time         `json:"notion_created_time"`
	NotionLastEditedTime time.Time         `json:"notion_last_edited_time"`
	ContentType          ContentType       `json:"content_type"`
	IsChunked            bool              `json:"is_chunked"`
	ChunkCount           int               `json:"chunk_count"`
	TokenCount           int               `json:"token_count"`
	NotionProperties     map[string]any    `json:"notion_properties"`
	ExtractedMetadata    map[string]any    `json:"extracted_metadata"`
	ProcessingStatus     ProcessingStatus  `json:"processing_status"`
}

// PositionMetadata records a chunk's place within its document's chunk list.
type PositionMetadata struct {
	Index            int     `json:"index"`
	Total            int     `json:"total"`
	IsFirst          bool    `json:"is_first"`
	IsLast           bool    `json:"is_last"`
	RelativePosition float64 `json:"relative_position"`
}

// DocumentChunk is one row per chunk; chunks of a document form a linear
// doubly-linked list ordered by ChunkOrder.
type DocumentChunk struct {
	ID                   uuid.UUID        `json:"id"`
	DocumentID           uuid.UUID        `json:"document_id"`
	ChunkOrder           int              `json:"chunk_order"`
	Content              string           `json:"content"`
	TokenCount           int              `json:"token_count"`
	ChunkContext         string           `json:"chunk_context"`
	ChunkSummary         string           `json:"chunk_summary"`
	DocumentSection      string           `json:"document_section"`
	SectionHierarchy     []string         `json:"section_hierarchy"`
	ChunkType            ChunkType        `json:"chunk_type"`
	ChunkPositionMetadata PositionMetadata `json:"chunk_position_metadata"`
	Embedding            pgvector.Vector  `json:"embedding"`
	ContextualEmbedding  pgvector.Vector  `json:"contextual_embedding"`
	PrevChunkID          *uuid.UUID       `json:"prev_chunk_id,omitempty"`
	NextChunkID          *uuid.UUID       `json:"next_chunk_id,omitempty"`
}

// DocumentMetadata stores one typed projection of a promoted field for a
// document, making it indexable by the metadata filter RPCs.
type DocumentMetadata struct {
	ID           uuid.UUID  `json:"id"`
	DocumentID   uuid.UUID  `json:"document_id"`
	FieldName    string     `json:"field_name"`
	TextValue    *string    `json:"text_value,omitempty"`
	NumberValue  *float64   `json:"number_value,omitempty"`
	DateValue    *time.Time `json:"date_value,omitempty"`
	DatetimeValue *time.Time `json:"datetime_value,omitempty"`
	BooleanValue *bool      `json:"boolean_value,omitempty"`
	ArrayValue   []string   `json:"array_value,omitempty"`
}

// ChatSession is one row per conversation. At most one session may have
// Status == SessionActive at any moment.
type ChatSession struct {
	ID            uuid.UUID     `json:"id"`
	Title         string        `json:"title"`
	Summary       *string       `json:"summary,omitempty"`
	Status        SessionStatus `json:"status"`
	MessageCount  int           `json:"message_count"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ChatMessage is one row per message, ordered by MessageOrder per session.
type ChatMessage struct {
	ID           uuid.UUID      `json:"id"`
	SessionID    uuid.UUID      `json:"session_id"`
	Role         MessageRole    `json:"role"`
	Content      string         `json:"content"`
	MessageOrder int            `json:"message_order"`
	Citations    []ChunkRef     `json:"citations,omitempty"`
	ContextUsed  map[string]any `json:"context_used,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ChunkRef identifies a chunk/document pair for citation purposes.
type ChunkRef struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
}
