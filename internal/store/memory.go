package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// Memory is an in-process Store backed by maps guarded by a single mutex.
// It is used by tests and any offline/dry-run path that should not require
// a live Postgres instance.
type Memory struct {
	mu sync.RWMutex

	databases map[string]NotionDatabase
	documents map[uuid.UUID]Document
	byPageID  map[string]uuid.UUID
	chunks    map[uuid.UUID]DocumentChunk
	metadata  map[uuid.UUID][]DocumentMetadata // keyed by document ID
	sessions  map[uuid.UUID]ChatSession
	messages  map[uuid.UUID][]ChatMessage
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		databases: map[string]NotionDatabase{},
		documents: map[uuid.UUID]Document{},
		byPageID:  map[string]uuid.UUID{},
		chunks:    map[uuid.UUID]DocumentChunk{},
		metadata:  map[uuid.UUID][]DocumentMetadata{},
		sessions:  map[uuid.UUID]ChatSession{},
		messages:  map[uuid.UUID][]ChatMessage{},
	}
}

func (m *Memory) Close() {}

func (m *Memory) UpsertDatabase(_ context.Context, db NotionDatabase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.databases[db.DatabaseID] = db
	return nil
}

func (m *Memory) GetDatabase(_ context.Context, databaseID string) (NotionDatabase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.databases[databaseID]
	if !ok {
		return NotionDatabase{}, fmt.Errorf("%w: database %s", ragerrors.NotFound, databaseID)
	}
	return db, nil
}

func (m *Memory) ListActiveDatabases(_ context.Context) ([]NotionDatabase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []NotionDatabase
	for _, db := range m.databases {
		if db.IsActive {
			out = append(out, db)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatabaseID < out[j].DatabaseID })
	return out, nil
}

func (m *Memory) UpsertDocument(_ context.Context, doc Document) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	m.documents[doc.ID] = doc
	m.byPageID[doc.NotionPageID] = doc.ID
	return doc.ID, nil
}

func (m *Memory) GetDocumentByNotionPageID(_ context.Context, notionPageID string) (Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPageID[notionPageID]
	if !ok {
		return Document{}, false, nil
	}
	return m.documents[id], true, nil
}

func (m *Memory) GetDocument(_ context.Context, id uuid.UUID) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: document %s", ragerrors.NotFound, id)
	}
	return doc, nil
}

func (m *Memory) SetDocumentStatus(_ context.Context, id uuid.UUID, status ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("%w: document %s", ragerrors.NotFound, id)
	}
	doc.ProcessingStatus = status
	m.documents[id] = doc
	return nil
}

func (m *Memory) DeleteDocumentByNotionPageID(_ context.Context, notionPageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPageID[notionPageID]
	if !ok {
		return nil
	}
	delete(m.byPageID, notionPageID)
	delete(m.documents, id)
	delete(m.metadata, id)
	for cid, c := range m.chunks {
		if c.DocumentID == id {
			delete(m.chunks, cid)
		}
	}
	return nil
}

func (m *Memory) InsertChunks(_ context.Context, chunks []DocumentChunk) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		m.chunks[c.ID] = c
		ids[i] = c.ID
	}
	return ids, nil
}

func (m *Memory) LinkChunks(_ context.Context, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ordered []DocumentChunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			ordered = append(ordered, c)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ChunkOrder < ordered[j].ChunkOrder })
	for i, c := range ordered {
		if i > 0 {
			prev := ordered[i-1].ID
			c.PrevChunkID = &prev
		} else {
			c.PrevChunkID = nil
		}
		if i < len(ordered)-1 {
			next := ordered[i+1].ID
			c.NextChunkID = &next
		} else {
			c.NextChunkID = nil
		}
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *Memory) DeleteChunksByDocument(_ context.Context, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *Memory) GetChunk(_ context.Context, id uuid.UUID) (DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[id]
	if !ok {
		return DocumentChunk{}, fmt.Errorf("%w: chunk %s", ragerrors.NotFound, id)
	}
	return c, nil
}

func (m *Memory) UpsertMetadata(_ context.Context, rows []DocumentMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		m.metadata[r.DocumentID] = append(m.metadata[r.DocumentID], r)
	}
	return nil
}

func (m *Memory) DeleteMetadataByDocument(_ context.Context, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metadata, documentID)
	return nil
}

func (m *Memory) CreateSession(_ context.Context, session ChatSession) (ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	session.CreatedAt, session.UpdatedAt = now, now
	m.sessions[session.ID] = session
	return session, nil
}

func (m *Memory) GetSession(_ context.Context, id uuid.UUID) (ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return ChatSession{}, fmt.Errorf("%w: session %s", ragerrors.SessionNotFound, id)
	}
	return s, nil
}

func (m *Memory) GetActiveSession(_ context.Context) (ChatSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Status == SessionActive {
			return s, true, nil
		}
	}
	return ChatSession{}, false, nil
}

func (m *Memory) UpdateSession(_ context.Context, session ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		return fmt.Errorf("%w: session %s", ragerrors.SessionNotFound, session.ID)
	}
	session.UpdatedAt = time.Now().UTC()
	m.sessions[session.ID] = session
	return nil
}

func (m *Memory) ListIdleCandidates(_ context.Context, idleSince int64) ([]ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Unix(idleSince, 0)
	var out []ChatSession
	for _, s := range m.sessions {
		if s.Status == SessionActive && s.MessageCount >= 2 && s.LastMessageAt != nil && s.LastMessageAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg ChatMessage) (ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[msg.SessionID]; !ok {
		return ChatMessage{}, fmt.Errorf("%w: session %s", ragerrors.SessionNotFound, msg.SessionID)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	existing := m.messages[msg.SessionID]
	msg.MessageOrder = len(existing)
	msg.CreatedAt = time.Now().UTC()
	m.messages[msg.SessionID] = append(existing, msg)

	sess := m.sessions[msg.SessionID]
	sess.MessageCount = len(m.messages[msg.SessionID])
	t := msg.CreatedAt
	sess.LastMessageAt = &t
	sess.UpdatedAt = t
	m.sessions[msg.SessionID] = sess

	return msg, nil
}

func (m *Memory) ListMessages(_ context.Context, sessionID uuid.UUID, limit int) ([]ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	if limit <= 0 || limit >= len(msgs) {
		out := make([]ChatMessage, len(msgs))
		copy(out, msgs)
		return out, nil
	}
	out := make([]ChatMessage, limit)
	copy(out, msgs[:limit])
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(f float64) float64 {
	if f <= 0 {
		return 0
	}
	x := f
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}

func (m *Memory) matchingDocumentIDs(filters SearchFilters) map[uuid.UUID]bool {
	if len(filters.DatabaseIDs) == 0 && len(filters.ContentTypes) == 0 {
		return nil
	}
	dbSet := map[string]bool{}
	for _, id := range filters.DatabaseIDs {
		dbSet[id] = true
	}
	ctSet := map[ContentType]bool{}
	for _, ct := range filters.ContentTypes {
		ctSet[ct] = true
	}
	out := map[uuid.UUID]bool{}
	for _, doc := range m.documents {
		if len(dbSet) > 0 && !dbSet[doc.NotionDatabaseID] {
			continue
		}
		if len(ctSet) > 0 && !ctSet[doc.ContentType] {
			continue
		}
		out[doc.ID] = true
	}
	return out
}

func (m *Memory) searchChunks(queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int, useContextual bool) []ChunkMatch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := m.matchingDocumentIDs(filters)

	var matches []ChunkMatch
	for _, c := range m.chunks {
		if allowed != nil && !allowed[c.DocumentID] {
			continue
		}
		doc := m.documents[c.DocumentID]
		contentSim := cosine(queryEmbedding, c.Embedding.Slice())
		contextualSim := contentSim
		if useContextual {
			contextualSim = cosine(queryEmbedding, c.ContextualEmbedding.Slice())
		}
		combined := 0.7*contextualSim + 0.3*contentSim
		if combined < matchThreshold {
			continue
		}
		matches = append(matches, ChunkMatch{
			Chunk:                c,
			Document:             doc,
			ContentSimilarity:    contentSim,
			ContextualSimilarity: contextualSim,
			CombinedScore:        combined,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CombinedScore > matches[j].CombinedScore })
	if matchCount > 0 && len(matches) > matchCount {
		matches = matches[:matchCount]
	}
	return matches
}

func (m *Memory) MatchChunks(_ context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error) {
	return m.searchChunks(queryEmbedding, filters, matchThreshold, matchCount, false), nil
}

func (m *Memory) MatchContextualChunks(_ context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error) {
	return m.searchChunks(queryEmbedding, filters, matchThreshold, matchCount, true), nil
}

func (m *Memory) EnhancedMetadataSearch(_ context.Context, queryEmbedding []float32, filters SearchFilters, matchThreshold float64, matchCount int) ([]ChunkMatch, error) {
	matches := m.searchChunks(queryEmbedding, filters, matchThreshold, matchCount*4, true)
	if len(filters.MetadataFilters) == 0 {
		if matchCount > 0 && len(matches) > matchCount {
			matches = matches[:matchCount]
		}
		return matches, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ChunkMatch
	for _, match := range matches {
		rows := m.metadata[match.Document.ID]
		if metadataSatisfies(rows, filters.MetadataFilters) {
			out = append(out, match)
		}
	}
	if matchCount > 0 && len(out) > matchCount {
		out = out[:matchCount]
	}
	return out, nil
}

func metadataSatisfies(rows []DocumentMetadata, filters []MetadataFilter) bool {
	for _, f := range filters {
		if !metadataFieldSatisfies(rows, f) {
			return false
		}
	}
	return true
}

func metadataFieldSatisfies(rows []DocumentMetadata, f MetadataFilter) bool {
	for _, r := range rows {
		if r.FieldName != f.FieldName {
			continue
		}
		switch f.Operator {
		case OpEquals:
			return r.TextValue != nil && len(f.Values) > 0 && *r.TextValue == f.Values[0]
		case OpIn:
			if r.TextValue == nil {
				continue
			}
			for _, v := range f.Values {
				if v == *r.TextValue {
					return true
				}
			}
		case OpContains:
			for _, v := range r.ArrayValue {
				for _, want := range f.Values {
					if strings.EqualFold(v, want) {
						return true
					}
				}
			}
		case OpRange:
			// Range comparisons need typed bounds; the in-memory store
			// treats any present value as satisfying a range filter since
			// it exists only for test coverage of the filter-routing path.
			return r.NumberValue != nil || r.DateValue != nil
		}
	}
	return false
}

func (m *Memory) GetChunkWithContext(_ context.Context, chunkID uuid.UUID, includeAdjacent bool) (ChunkWithContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	main, ok := m.chunks[chunkID]
	if !ok {
		return ChunkWithContext{}, fmt.Errorf("%w: chunk %s", ragerrors.NotFound, chunkID)
	}
	result := ChunkWithContext{Main: main}
	if !includeAdjacent {
		return result, nil
	}
	if main.PrevChunkID != nil {
		if prev, ok := m.chunks[*main.PrevChunkID]; ok {
			result.Prev = &prev
		}
	}
	if main.NextChunkID != nil {
		if next, ok := m.chunks[*main.NextChunkID]; ok {
			result.Next = &next
		}
	}
	return result, nil
}
