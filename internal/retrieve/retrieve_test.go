package retrieve

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/fyang0507/notion-rag-core/internal/embed"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

func seedDocument(t *testing.T, st store.Store, emb embed.Embedder, title string, contents []string, cfg func(i int, c *store.DocumentChunk)) uuid.UUID {
	t.Helper()
	docID, err := st.UpsertDocument(context.Background(), store.Document{
		NotionPageID: title, Title: title, ContentType: store.ContentDocument,
	})
	if err != nil {
		t.Fatalf("upsert document: %v", err)
	}

	chunks := make([]store.DocumentChunk, len(contents))
	for i, content := range contents {
		v, err := emb.EmbedOne(context.Background(), content)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		c := store.DocumentChunk{
			ID:                  uuid.New(),
			DocumentID:          docID,
			ChunkOrder:          i,
			Content:             content,
			Embedding:           pgvector.NewVector(v),
			ContextualEmbedding: pgvector.NewVector(v),
		}
		if cfg != nil {
			cfg(i, &c)
		}
		chunks[i] = c
	}
	if _, err := st.InsertChunks(context.Background(), chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}
	if err := st.LinkChunks(context.Background(), docID); err != nil {
		t.Fatalf("link chunks: %v", err)
	}
	return docID
}

func TestSearch_ReturnsTopKByFinalScore(t *testing.T) {
	st := store.NewMemory()
	emb := embed.NewDeterministic(32, 7)

	seedDocument(t, st, emb, "Doc A", []string{"alpha beta gamma", "delta epsilon zeta"}, func(i int, c *store.DocumentChunk) {
		if i == 0 {
			c.ChunkContext = "about alpha"
			c.ChunkSummary = "alpha summary"
		}
	})

	p := &Pipeline{Embedder: emb, Store: st}
	results, err := p.Search(context.Background(), "alpha beta gamma", store.SearchFilters{}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Content != "alpha beta gamma" {
		t.Fatalf("expected the exact-match chunk to win, got %q", results[0].Content)
	}
	if results[0].FinalScore <= results[0].CombinedScore {
		t.Fatalf("expected boosts to raise final score above combined score: final=%v combined=%v",
			results[0].FinalScore, results[0].CombinedScore)
	}
}

func TestSearch_ComposesEnrichedContentWithNeighbors(t *testing.T) {
	st := store.NewMemory()
	emb := embed.NewDeterministic(32, 7)

	seedDocument(t, st, emb, "Doc B", []string{"first chunk text", "second chunk text", "third chunk text"},
		func(i int, c *store.DocumentChunk) {
			switch i {
			case 0:
				c.ChunkSummary = "first summary"
			case 1:
				c.ChunkContext = "second context"
				c.ChunkSummary = "second summary"
			case 2:
				c.ChunkSummary = "third summary"
			}
		})

	p := &Pipeline{Embedder: emb, Store: st}
	results, err := p.Search(context.Background(), "second chunk text", store.SearchFilters{}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	var middle *RetrievedChunk
	for i := range results {
		if results[i].Content == "second chunk text" {
			middle = &results[i]
		}
	}
	if middle == nil {
		t.Fatalf("expected to find the middle chunk in results")
	}
	if !middle.HasAdjacentContext {
		t.Fatalf("expected middle chunk to have adjacent context")
	}
	for _, want := range []string{"[Previous: first summary]", "[Context: second context]", "[Following: third summary]"} {
		if !containsSubstr(middle.EnrichedContent, want) {
			t.Fatalf("expected enriched content to contain %q, got:\n%s", want, middle.EnrichedContent)
		}
	}
}

func TestSearch_NoMatchesReturnsNoResultsError(t *testing.T) {
	st := store.NewMemory()
	emb := embed.NewDeterministic(32, 7)
	p := &Pipeline{Embedder: emb, Store: st}

	_, err := p.Search(context.Background(), "anything", store.SearchFilters{}, 3)
	if err == nil {
		t.Fatalf("expected an error for an empty store")
	}
}

// fakeVectorIndex is an in-memory double for store.VectorIndex, used to
// exercise Pipeline.matchViaVectorIndex without a live Qdrant instance.
type fakeVectorIndex struct {
	vectors map[string][]float32
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{vectors: map[string][]float32{}}
}

func (f *fakeVectorIndex) Upsert(_ context.Context, chunkID string, vector []float32, _ map[string]string) error {
	f.vectors[chunkID] = vector
	return nil
}

func (f *fakeVectorIndex) Delete(_ context.Context, chunkID string) error {
	delete(f.vectors, chunkID)
	return nil
}

func (f *fakeVectorIndex) Search(_ context.Context, query []float32, k int, _ map[string]string) ([]store.VectorMatch, error) {
	matches := make([]store.VectorMatch, 0, len(f.vectors))
	for id, v := range f.vectors {
		matches = append(matches, store.VectorMatch{ChunkID: id, Score: cosine(query, v)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (f *fakeVectorIndex) Dimension() int { return 0 }
func (f *fakeVectorIndex) Close() error   { return nil }

func TestSearch_UsesVectorIndexForCandidatesWhenConfigured(t *testing.T) {
	st := store.NewMemory()
	emb := embed.NewDeterministic(32, 7)
	idx := newFakeVectorIndex()

	docID := seedDocument(t, st, emb, "Doc C", []string{"red fox jumps", "lazy brown dog"}, nil)
	chunks, err := st.MatchChunks(context.Background(), []float32{}, store.SearchFilters{}, -1, 10)
	if err != nil {
		t.Fatalf("match chunks: %v", err)
	}
	for _, m := range chunks {
		if m.Document.ID != docID {
			continue
		}
		v, _ := emb.EmbedOne(context.Background(), m.Chunk.Content)
		if err := idx.Upsert(context.Background(), m.Chunk.ID.String(), v, nil); err != nil {
			t.Fatalf("upsert vector index: %v", err)
		}
	}

	p := &Pipeline{Embedder: emb, Store: st, VectorIndex: idx}
	results, err := p.Search(context.Background(), "red fox jumps", store.SearchFilters{}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "red fox jumps" {
		t.Fatalf("expected the vector-index-ranked chunk to win, got %+v", results)
	}
}

func containsSubstr(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
