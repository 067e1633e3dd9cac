package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// Postgres is a pgx/pgxpool-backed Store. Schema bootstrap is best-effort
// CREATE TABLE/INDEX IF NOT EXISTS run at Init, matching the teacher's
// dev-time migration style; production deployments may still point it at a
// schema managed by an external migration tool since every statement here is
// idempotent.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Init bootstraps the schema: tables with ON DELETE CASCADE ownership and
// their indexes. It creates no database functions; the four named search
// operations are Go methods that issue their own SQL (postgres_rpc.go).
func (p *Postgres) Init(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("%w: postgres schema init: %v", ragerrors.StoreFailure, err)
	}
	return nil
}

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS notion_databases (
    database_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    notion_schema JSONB NOT NULL DEFAULT '{}',
    field_definitions JSONB NOT NULL DEFAULT '{}',
    queryable_fields TEXT[] NOT NULL DEFAULT '{}',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    last_sync_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS documents (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    notion_page_id TEXT NOT NULL UNIQUE,
    notion_database_id TEXT NOT NULL REFERENCES notion_databases(database_id),
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    content_embedding vector,
    summary_embedding vector,
    document_summary TEXT,
    page_url TEXT NOT NULL DEFAULT '',
    notion_created_time TIMESTAMPTZ,
    notion_last_edited_time TIMESTAMPTZ,
    content_type TEXT NOT NULL DEFAULT 'document',
    is_chunked BOOLEAN NOT NULL DEFAULT FALSE,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    token_count INTEGER NOT NULL DEFAULT 0,
    notion_properties JSONB NOT NULL DEFAULT '{}',
    extracted_metadata JSONB NOT NULL DEFAULT '{}',
    processing_status TEXT NOT NULL DEFAULT 'processing'
);

CREATE TABLE IF NOT EXISTS document_chunks (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    chunk_order INTEGER NOT NULL,
    content TEXT NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    chunk_context TEXT NOT NULL DEFAULT '',
    chunk_summary TEXT NOT NULL DEFAULT '',
    document_section TEXT NOT NULL DEFAULT '',
    section_hierarchy JSONB NOT NULL DEFAULT '[]',
    chunk_type TEXT NOT NULL DEFAULT 'content',
    chunk_position_metadata JSONB NOT NULL DEFAULT '{}',
    embedding vector NOT NULL,
    contextual_embedding vector NOT NULL,
    prev_chunk_id UUID REFERENCES document_chunks(id),
    next_chunk_id UUID REFERENCES document_chunks(id)
);

CREATE INDEX IF NOT EXISTS document_chunks_document_order_idx ON document_chunks(document_id, chunk_order);

CREATE TABLE IF NOT EXISTS document_metadata (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    field_name TEXT NOT NULL,
    text_value TEXT,
    number_value DOUBLE PRECISION,
    date_value DATE,
    datetime_value TIMESTAMPTZ,
    boolean_value BOOLEAN,
    array_value TEXT[]
);

CREATE INDEX IF NOT EXISTS document_metadata_document_field_idx ON document_metadata(document_id, field_name);

CREATE TABLE IF NOT EXISTS chat_sessions (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    title TEXT NOT NULL DEFAULT '',
    summary TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    message_count INTEGER NOT NULL DEFAULT 0,
    last_message_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS chat_sessions_single_active_idx
    ON chat_sessions ((status)) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS chat_messages (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    message_order INTEGER NOT NULL,
    citations JSONB NOT NULL DEFAULT '[]',
    context_used JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS chat_messages_session_order_idx ON chat_messages(session_id, message_order);

ALTER TABLE document_chunks ADD COLUMN IF NOT EXISTS chunk_type TEXT NOT NULL DEFAULT 'content';
`

func (p *Postgres) UpsertDatabase(ctx context.Context, db NotionDatabase) error {
	schemaJSON, _ := json.Marshal(db.NotionSchema)
	fieldsJSON, _ := json.Marshal(db.FieldDefinitions)
	_, err := p.pool.Exec(ctx, `
INSERT INTO notion_databases (database_id, name, notion_schema, field_definitions, queryable_fields, is_active, last_sync_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (database_id) DO UPDATE SET
    name = EXCLUDED.name,
    notion_schema = EXCLUDED.notion_schema,
    field_definitions = EXCLUDED.field_definitions,
    queryable_fields = EXCLUDED.queryable_fields,
    is_active = EXCLUDED.is_active,
    last_sync_at = EXCLUDED.last_sync_at
`, db.DatabaseID, db.Name, schemaJSON, fieldsJSON, db.QueryableFields, db.IsActive, db.LastSyncAt)
	if err != nil {
		return fmt.Errorf("%w: upsert database: %v", ragerrors.StoreFailure, err)
	}
	return nil
}

func (p *Postgres) GetDatabase(ctx context.Context, databaseID string) (NotionDatabase, error) {
	row := p.pool.QueryRow(ctx, `
SELECT database_id, name, notion_schema, field_definitions, queryable_fields, is_active, last_sync_at
FROM notion_databases WHERE database_id = $1`, databaseID)
	return scanDatabase(row)
}

func (p *Postgres) ListActiveDatabases(ctx context.Context) ([]NotionDatabase, error) {
	rows, err := p.pool.Query(ctx, `
SELECT database_id, name, notion_schema, field_definitions, queryable_fields, is_active, last_sync_at
FROM notion_databases WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("%w: list databases: %v", ragerrors.StoreFailure, err)
	}
	defer rows.Close()
	var out []NotionDatabase
	for rows.Next() {
		db, err := scanDatabase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, db)
	}
	return out, nil
}

func scanDatabase(row pgx.Row) (NotionDatabase, error) {
	var db NotionDatabase
	var schemaJSON, fieldsJSON []byte
	if err := row.Scan(&db.DatabaseID, &db.Name, &schemaJSON, &fieldsJSON, &db.QueryableFields, &db.IsActive, &db.LastSyncAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NotionDatabase{}, fmt.Errorf("%w: database not found", ragerrors.NotFound)
		}
		return NotionDatabase{}, fmt.Errorf("%w: scan database: %v", ragerrors.StoreFailure, err)
	}
	_ = json.Unmarshal(schemaJSON, &db.NotionSchema)
	_ = json.Unmarshal(fieldsJSON, &db.FieldDefinitions)
	return db, nil
}

func (p *Postgres) UpsertDocument(ctx context.Context, doc Document) (uuid.UUID, error) {
	propsJSON, _ := json.Marshal(doc.NotionProperties)
	metaJSON, _ := json.Marshal(doc.ExtractedMetadata)

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO documents (id, notion_page_id, notion_database_id, title, content, content_embedding,
    summary_embedding, document_summary, page_url, notion_created_time, notion_last_edited_time,
    content_type, is_chunked, chunk_count, token_count, notion_properties, extracted_metadata, processing_status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (notion_page_id) DO UPDATE SET
    title = EXCLUDED.title,
    content = EXCLUDED.content,
    content_embedding = EXCLUDED.content_embedding,
    summary_embedding = EXCLUDED.summary_embedding,
    document_summary = EXCLUDED.document_summary,
    page_url = EXCLUDED.page_url,
    notion_last_edited_time = EXCLUDED.notion_last_edited_time,
    content_type = EXCLUDED.content_type,
    is_chunked = EXCLUDED.is_chunked,
    chunk_count = EXCLUDED.chunk_count,
    token_count = EXCLUDED.token_count,
    notion_properties = EXCLUDED.notion_properties,
    extracted_metadata = EXCLUDED.extracted_metadata,
    processing_status = EXCLUDED.processing_status
`, doc.ID, doc.NotionPageID, doc.NotionDatabaseID, doc.Title, doc.Content, doc.ContentEmbedding,
		doc.SummaryEmbedding, doc.DocumentSummary, doc.PageURL, doc.NotionCreatedTime, doc.NotionLastEditedTime,
		string(doc.ContentType), doc.IsChunked, doc.ChunkCount, doc.TokenCount, propsJSON, metaJSON, string(doc.ProcessingStatus))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: upsert document: %v", ragerrors.StoreFailure, err)
	}
	return doc.ID, nil
}

const documentColumns = `id, notion_page_id, notion_database_id, title, content, content_embedding,
    summary_embedding, document_summary, page_url, notion_created_time, notion_last_edited_time,
    content_type, is_chunked, chunk_count, token_count, notion_properties, extracted_metadata, processing_status`

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var propsJSON, metaJSON []byte
	var contentType, status string
	if err := row.Scan(&doc.ID, &doc.NotionPageID, &doc.NotionDatabaseID, &doc.Title, &doc.Content, &doc.ContentEmbedding,
		&doc.SummaryEmbedding, &doc.DocumentSummary, &doc.PageURL, &doc.NotionCreatedTime, &doc.NotionLastEditedTime,
		&contentType, &doc.IsChunked, &doc.ChunkCount, &doc.TokenCount, &propsJSON, &metaJSON, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: document not found", ragerrors.NotFound)
		}
		return Document{}, fmt.Errorf("%w: scan document: %v", ragerrors.StoreFailure, err)
	}
	doc.ContentType = ContentType(contentType)
	doc.ProcessingStatus = ProcessingStatus(status)
	_ = json.Unmarshal(propsJSON, &doc.NotionProperties)
	_ = json.Unmarshal(metaJSON, &doc.ExtractedMetadata)
	return doc, nil
}

func (p *Postgres) GetDocumentByNotionPageID(ctx context.Context, notionPageID string) (Document, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE notion_page_id = $1`, notionPageID)
	doc, err := scanDocument(row)
	if errors.Is(err, ragerrors.NotFound) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	return doc, true, nil
}

func (p *Postgres) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (p *Postgres) SetDocumentStatus(ctx context.Context, id uuid.UUID, status ProcessingStatus) error {
	tag, err := p.pool.Exec(ctx, `UPDATE documents SET processing_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("%w: set document status: %v", ragerrors.StoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", ragerrors.NotFound, id)
	}
	return nil
}

func (p *Postgres) DeleteDocumentByNotionPageID(ctx context.Context, notionPageID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE notion_page_id = $1`, notionPageID)
	if err != nil {
		return fmt.Errorf("%w: delete document: %v", ragerrors.StoreFailure, err)
	}
	return nil
}

func (p *Postgres) InsertChunks(ctx context.Context, chunks []DocumentChunk) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(chunks))
	batch := &pgx.Batch{}
	for i, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		ids[i] = c.ID
		hierarchyJSON, _ := json.Marshal(c.SectionHierarchy)
		posJSON, _ := json.Marshal(c.ChunkPositionMetadata)
		batch.Queue(`
INSERT INTO document_chunks (id, document_id, chunk_order, content, token_count, chunk_context, chunk_summary,
    document_section, section_hierarchy, chunk_type, chunk_position_metadata, embedding, contextual_embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, c.ID, c.DocumentID, c.ChunkOrder, c.Content, c.TokenCount, c.ChunkContext, c.ChunkSummary,
			c.DocumentSection, hierarchyJSON, string(c.ChunkType), posJSON, c.Embedding, c.ContextualEmbedding)
	}
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return nil, fmt.Errorf("%w: insert chunk: %v", ragerrors.StoreFailure, err)
		}
	}
	return ids, nil
}

// LinkChunks is the second-pass UPDATE that fills prev_chunk_id/next_chunk_id
// for every chunk of a document, ordered by chunk_order, using a window
// function so the whole pass is one round trip.
func (p *Postgres) LinkChunks(ctx context.Context, documentID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
WITH ordered AS (
    SELECT id, chunk_order,
           LAG(id) OVER (ORDER BY chunk_order) AS prev_id,
           LEAD(id) OVER (ORDER BY chunk_order) AS next_id
    FROM document_chunks WHERE document_id = $1
)
UPDATE document_chunks dc
SET prev_chunk_id = ordered.prev_id, next_chunk_id = ordered.next_id
FROM ordered
WHERE dc.id = ordered.id
`, documentID)
	if err != nil {
		return fmt.Errorf("%w: link chunks: %v", ragerrors.StoreFailure, err)
	}
	return nil
}

func (p *Postgres) DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("%w: delete chunks: %v", ragerrors.StoreFailure, err)
	}
	return nil
}

func scanChunk(row pgx.Row) (DocumentChunk, error) {
	var c DocumentChunk
	var hierarchyJSON, posJSON []byte
	var chunkType string
	if err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkOrder, &c.Content, &c.TokenCount, &c.ChunkContext, &c.ChunkSummary,
		&c.DocumentSection, &hierarchyJSON, &chunkType, &posJSON, &c.Embedding, &c.ContextualEmbedding,
		&c.PrevChunkID, &c.NextChunkID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DocumentChunk{}, fmt.Errorf("%w: chunk not found", ragerrors.NotFound)
		}
		return DocumentChunk{}, fmt.Errorf("%w: scan chunk: %v", ragerrors.StoreFailure, err)
	}
	c.ChunkType = ChunkType(chunkType)
	_ = json.Unmarshal(hierarchyJSON, &c.SectionHierarchy)
	_ = json.Unmarshal(posJSON, &c.ChunkPositionMetadata)
	return c, nil
}

const chunkColumns = `id, document_id, chunk_order, content, token_count, chunk_context, chunk_summary,
    document_section, section_hierarchy, chunk_type, chunk_position_metadata, embedding, contextual_embedding,
    prev_chunk_id, next_chunk_id`

func (p *Postgres) GetChunk(ctx context.Context, id uuid.UUID) (DocumentChunk, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM document_chunks WHERE id = $1`, id)
	return scanChunk(row)
}

func (p *Postgres) UpsertMetadata(ctx context.Context, rows []DocumentMetadata) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		batch.Queue(`
INSERT INTO document_metadata (id, document_id, field_name, text_value, number_value, date_value, datetime_value, boolean_value, array_value)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, r.ID, r.DocumentID, r.FieldName, r.TextValue, r.NumberValue, r.DateValue, r.DatetimeValue, r.BooleanValue, r.ArrayValue)
	}
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: upsert metadata: %v", ragerrors.StoreFailure, err)
		}
	}
	return nil
}

func (p *Postgres) DeleteMetadataByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM document_metadata WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("%w: delete metadata: %v", ragerrors.StoreFailure, err)
	}
	return nil
}

// CreateSession inserts a new session. If status is active, any
// previously-active session must already have been concluded by the caller
// (internal/session enforces ensure_single_active_session before calling
// this); the partial unique index is a last-resort guard against races.
func (p *Postgres) CreateSession(ctx context.Context, session ChatSession) (ChatSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = SessionActive
	}
	row := p.pool.QueryRow(ctx, `
INSERT INTO chat_sessions (id, title, summary, status)
VALUES ($1,$2,$3,$4)
RETURNING id, title, summary, status, message_count, last_message_at, created_at, updated_at
`, session.ID, session.Title, session.Summary, string(session.Status))
	return scanSession(row)
}

func scanSession(row pgx.Row) (ChatSession, error) {
	var s ChatSession
	var status string
	if err := row.Scan(&s.ID, &s.Title, &s.Summary, &status, &s.MessageCount, &s.LastMessageAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatSession{}, fmt.Errorf("%w: session not found", ragerrors.SessionNotFound)
		}
		return ChatSession{}, fmt.Errorf("%w: scan session: %v", ragerrors.StoreFailure, err)
	}
	s.Status = SessionStatus(status)
	return s, nil
}

func (p *Postgres) GetSession(ctx context.Context, id uuid.UUID) (ChatSession, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, title, summary, status, message_count, last_message_at, created_at, updated_at
FROM chat_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *Postgres) GetActiveSession(ctx context.Context) (ChatSession, bool, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, title, summary, status, message_count, last_message_at, created_at, updated_at
FROM chat_sessions WHERE status = 'active' LIMIT 1`)
	s, err := scanSession(row)
	if errors.Is(err, ragerrors.SessionNotFound) {
		return ChatSession{}, false, nil
	}
	if err != nil {
		return ChatSession{}, false, err
	}
	return s, true, nil
}

func (p *Postgres) UpdateSession(ctx context.Context, session ChatSession) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE chat_sessions SET title = $2, summary = $3, status = $4, message_count = $5, last_message_at = $6, updated_at = NOW()
WHERE id = $1`, session.ID, session.Title, session.Summary, string(session.Status), session.MessageCount, session.LastMessageAt)
	if err != nil {
		return fmt.Errorf("%w: update session: %v", ragerrors.StoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", ragerrors.SessionNotFound, session.ID)
	}
	return nil
}

func (p *Postgres) ListIdleCandidates(ctx context.Context, idleSince int64) ([]ChatSession, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, title, summary, status, message_count, last_message_at, created_at, updated_at
FROM chat_sessions
WHERE status = 'active' AND message_count >= 2 AND last_message_at < to_timestamp($1)`, idleSince)
	if err != nil {
		return nil, fmt.Errorf("%w: list idle candidates: %v", ragerrors.StoreFailure, err)
	}
	defer rows.Close()
	var out []ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) AppendMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	citationsJSON, _ := json.Marshal(msg.Citations)
	contextJSON, _ := json.Marshal(msg.ContextUsed)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("%w: begin append message: %v", ragerrors.StoreFailure, err)
	}
	defer tx.Rollback(ctx)

	var nextOrder int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(message_order) + 1, 0) FROM chat_messages WHERE session_id = $1`, msg.SessionID).Scan(&nextOrder); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: compute message order: %v", ragerrors.StoreFailure, err)
	}
	msg.MessageOrder = nextOrder

	row := tx.QueryRow(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, message_order, citations, context_used)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, session_id, role, content, message_order, citations, context_used, created_at
`, msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.MessageOrder, citationsJSON, contextJSON)

	var out ChatMessage
	var role string
	var citBytes, ctxBytes []byte
	if err := row.Scan(&out.ID, &out.SessionID, &role, &out.Content, &out.MessageOrder, &citBytes, &ctxBytes, &out.CreatedAt); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: insert message: %v", ragerrors.StoreFailure, err)
	}
	out.Role = MessageRole(role)
	_ = json.Unmarshal(citBytes, &out.Citations)
	_ = json.Unmarshal(ctxBytes, &out.ContextUsed)

	if _, err := tx.Exec(ctx, `
UPDATE chat_sessions SET message_count = message_count + 1, last_message_at = $2, updated_at = $2 WHERE id = $1
`, msg.SessionID, out.CreatedAt); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: update session counters: %v", ragerrors.StoreFailure, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: commit append message: %v", ragerrors.StoreFailure, err)
	}
	return out, nil
}

func (p *Postgres) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]ChatMessage, error) {
	query := `
SELECT id, session_id, role, content, message_order, citations, context_used, created_at
FROM chat_messages WHERE session_id = $1 ORDER BY message_order ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ragerrors.StoreFailure, err)
	}
	defer rows.Close()
	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var role string
		var citBytes, ctxBytes []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.MessageOrder, &citBytes, &ctxBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ragerrors.StoreFailure, err)
		}
		m.Role = MessageRole(role)
		_ = json.Unmarshal(citBytes, &m.Citations)
		_ = json.Unmarshal(ctxBytes, &m.ContextUsed)
		out = append(out, m)
	}
	return out, nil
}

// vectorArg wraps a query embedding as a pgvector.Vector so the search
// methods in postgres_rpc.go can bind it as a query parameter.
func vectorArg(v []float32) pgvector.Vector {
	return pgvector.NewVector(v)
}
