package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

func TestMemory_ChunkLinking(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	docID := uuid.New()

	chunks := []DocumentChunk{
		{DocumentID: docID, ChunkOrder: 0, Content: "a", Embedding: pgvector.NewVector([]float32{1, 0}), ContextualEmbedding: pgvector.NewVector([]float32{1, 0})},
		{DocumentID: docID, ChunkOrder: 1, Content: "b", Embedding: pgvector.NewVector([]float32{0, 1}), ContextualEmbedding: pgvector.NewVector([]float32{0, 1})},
		{DocumentID: docID, ChunkOrder: 2, Content: "c", Embedding: pgvector.NewVector([]float32{1, 1}), ContextualEmbedding: pgvector.NewVector([]float32{1, 1})},
	}
	ids, err := m.InsertChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if err := m.LinkChunks(ctx, docID); err != nil {
		t.Fatalf("link: %v", err)
	}

	first, _ := m.GetChunk(ctx, ids[0])
	mid, _ := m.GetChunk(ctx, ids[1])
	last, _ := m.GetChunk(ctx, ids[2])

	if first.PrevChunkID != nil {
		t.Fatalf("first chunk should have nil prev")
	}
	if first.NextChunkID == nil || *first.NextChunkID != mid.ID {
		t.Fatalf("first.next should point at mid")
	}
	if mid.PrevChunkID == nil || *mid.PrevChunkID != first.ID {
		t.Fatalf("mid.prev should point at first")
	}
	if mid.NextChunkID == nil || *mid.NextChunkID != last.ID {
		t.Fatalf("mid.next should point at last")
	}
	if last.NextChunkID != nil {
		t.Fatalf("last chunk should have nil next")
	}
}

func TestMemory_SingleActiveSessionBookkeeping(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	s1, _ := m.CreateSession(ctx, ChatSession{Status: SessionActive, Title: "one"})
	if err := m.UpdateSession(ctx, ChatSession{ID: s1.ID, Status: SessionConcluded, Title: s1.Title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	s2, _ := m.CreateSession(ctx, ChatSession{Status: SessionActive, Title: "two"})

	active, ok, err := m.GetActiveSession(ctx)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if !ok || active.ID != s2.ID {
		t.Fatalf("expected session two to be the sole active session, got %+v ok=%v", active, ok)
	}
}

func TestMemory_AppendMessageOrderIsDense(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sess, _ := m.CreateSession(ctx, ChatSession{Status: SessionActive})

	for i := 0; i < 4; i++ {
		msg, err := m.AppendMessage(ctx, ChatMessage{SessionID: sess.ID, Role: RoleUser, Content: "hi"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if msg.MessageOrder != i {
			t.Fatalf("expected message_order %d, got %d", i, msg.MessageOrder)
		}
	}
	updated, err := m.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if updated.MessageCount != 4 {
		t.Fatalf("expected message_count 4, got %d", updated.MessageCount)
	}
}

func TestMemory_MatchContextualChunksOrdersByCombinedScore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	docID := uuid.New()
	m.UpsertDocument(ctx, Document{ID: docID, NotionPageID: "p1", NotionDatabaseID: "db1", ContentType: ContentDocument})

	near := pgvector.NewVector([]float32{1, 0, 0})
	far := pgvector.NewVector([]float32{0, 0, 1})
	chunks := []DocumentChunk{
		{DocumentID: docID, ChunkOrder: 0, Embedding: far, ContextualEmbedding: far},
		{DocumentID: docID, ChunkOrder: 1, Embedding: near, ContextualEmbedding: near},
	}
	m.InsertChunks(ctx, chunks)

	matches, err := m.MatchContextualChunks(ctx, []float32{1, 0, 0}, SearchFilters{}, 0, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].CombinedScore < matches[1].CombinedScore {
		t.Fatalf("expected descending combined_score order, got %+v", matches)
	}
}

func TestMemory_ListIdleCandidates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	old := time.Now().Add(-20 * time.Minute)
	sess, _ := m.CreateSession(ctx, ChatSession{Status: SessionActive})
	sess.MessageCount = 2
	sess.LastMessageAt = &old
	if err := m.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("update: %v", err)
	}

	candidates, err := m.ListIdleCandidates(ctx, time.Now().Add(-10*time.Minute).Unix())
	if err != nil {
		t.Fatalf("list idle: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != sess.ID {
		t.Fatalf("expected the idle session to be returned, got %+v", candidates)
	}
}
