package ingest

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fyang0507/notion-rag-core/internal/chunk"
	"github.com/fyang0507/notion-rag-core/internal/embed"
	"github.com/fyang0507/notion-rag-core/internal/enrich"
	"github.com/fyang0507/notion-rag-core/internal/llm"
	"github.com/fyang0507/notion-rag-core/internal/notionclient"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

// wordTokenizer counts whitespace-separated tokens; good enough for test
// sizing thresholds without pulling in the real BPE tokenizer.
type wordTokenizer struct{}

func (wordTokenizer) Count(s string) int {
	return len(strings.Fields(s))
}

// fakeSource serves a fixed set of pages without talking to the network.
type fakeSource struct {
	pages map[string][]notionclient.Page
}

func (f *fakeSource) ListPages(_ context.Context, databaseID string) ([]notionclient.Page, error) {
	return f.pages[databaseID], nil
}

func (f *fakeSource) GetPage(_ context.Context, pageID string) (notionclient.Page, error) {
	for _, pages := range f.pages {
		for _, p := range pages {
			if p.PageID == pageID {
				return p, nil
			}
		}
	}
	return notionclient.Page{}, nil
}

// fakeChat answers every completion with a short canned response so
// enrichment never hits the fallback path in the happy-path tests.
type fakeChat struct{}

func (fakeChat) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: "a generated summary"}, nil
}

func (fakeChat) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamDelta, func() error) {
	ch := make(chan llm.StreamDelta)
	close(ch)
	return ch, func() error { return nil }
}

func shortContent(sentences int) string {
	parts := make([]string, sentences)
	for i := range parts {
		parts[i] = strings.Repeat("word ", 10) + "sentence."
	}
	return strings.Join(parts, "\n\n")
}

func newTestPipeline(st store.Store) *Pipeline {
	tok := wordTokenizer{}
	return &Pipeline{
		Source: &fakeSource{pages: map[string][]notionclient.Page{
			"db1": {
				{PageID: "p1", DatabaseID: "db1", Title: "Short Page", Content: shortContent(1), URL: "https://notion.so/p1"},
				{PageID: "p2", DatabaseID: "db1", Title: "Long Page", Content: shortContent(50), URL: "https://notion.so/p2"},
			},
		}},
		Tokenizer: tok,
		Chunker:   chunk.New(tok, "article"),
		Enricher:  enrich.New(fakeChat{}, tok, 0, zerolog.Nop()),
		Embedder:  embed.NewDeterministic(16, 1),
		Store:     st,
		Opt: Options{
			MaxEmbeddingTokens: 1000,
			MaxChunkTokens:     100,
			BatchSize:          10,
		},
	}
}

// chunksOf fetches every stored chunk belonging to doc, sorted by
// ChunkOrder, by overfetching MatchChunks with a zero-similarity floor —
// the in-memory store has no direct "list by document" capability, only
// the search RPCs.
func chunksOf(t *testing.T, st store.Store, docID interface{ String() string }) []store.DocumentChunk {
	t.Helper()
	matches, err := st.MatchChunks(context.Background(), make([]float32, 16), store.SearchFilters{}, -1, 10000)
	if err != nil {
		t.Fatalf("match chunks: %v", err)
	}
	var out []store.DocumentChunk
	for _, m := range matches {
		if m.Document.ID.String() == docID.String() {
			out = append(out, m.Chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkOrder < out[j].ChunkOrder })
	return out
}

func TestIngestDatabase_ShortPageEmbeddedWholeNoChunks(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(st)

	report, err := p.IngestDatabase(context.Background(), "db1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.PagesFailed != 0 {
		t.Fatalf("expected no failures, got %d: %v", report.PagesFailed, report.FailedPageIDs)
	}
	if report.PagesCompleted != 2 {
		t.Fatalf("expected 2 completed pages, got %d", report.PagesCompleted)
	}

	doc, found, err := st.GetDocumentByNotionPageID(context.Background(), "p1")
	if err != nil || !found {
		t.Fatalf("expected page p1 to be stored: found=%v err=%v", found, err)
	}
	if doc.IsChunked {
		t.Fatalf("expected short page not to be chunked")
	}
	if doc.ContentEmbedding == nil {
		t.Fatalf("expected short page to have a content embedding")
	}
	if doc.ProcessingStatus != store.StatusCompleted {
		t.Fatalf("expected status completed, got %s", doc.ProcessingStatus)
	}
}

func TestIngestDatabase_LongPageChunkedAndLinked(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(st)

	if _, err := p.IngestDatabase(context.Background(), "db1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, found, err := st.GetDocumentByNotionPageID(context.Background(), "p2")
	if err != nil || !found {
		t.Fatalf("expected page p2 to be stored: found=%v err=%v", found, err)
	}
	if !doc.IsChunked || doc.ChunkCount == 0 {
		t.Fatalf("expected long page to be chunked, got IsChunked=%v ChunkCount=%d", doc.IsChunked, doc.ChunkCount)
	}

	chunks := chunksOf(t, st, doc.ID)
	if len(chunks) != doc.ChunkCount {
		t.Fatalf("expected %d chunks, got %d", doc.ChunkCount, len(chunks))
	}
	if chunks[0].PrevChunkID != nil {
		t.Fatalf("expected first chunk to have nil prev, got %v", chunks[0].PrevChunkID)
	}
	if len(chunks) > 1 && chunks[len(chunks)-1].NextChunkID != nil {
		t.Fatalf("expected last chunk to have nil next")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].PrevChunkID == nil || *chunks[i].PrevChunkID != chunks[i-1].ID {
			t.Fatalf("chunk %d prev link broken", i)
		}
	}
}

func TestReingestPage_ReplacesExistingChunks(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(st)

	if _, err := p.IngestDatabase(context.Background(), "db1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, _, _ := st.GetDocumentByNotionPageID(context.Background(), "p2")
	beforeChunks := chunksOf(t, st, before.ID)

	if err := p.ReingestPage(context.Background(), "p2"); err != nil {
		t.Fatalf("reingest: %v", err)
	}
	after, found, err := st.GetDocumentByNotionPageID(context.Background(), "p2")
	if err != nil || !found {
		t.Fatalf("expected page to still exist after reingest")
	}
	afterChunks := chunksOf(t, st, after.ID)
	if len(afterChunks) != len(beforeChunks) {
		t.Fatalf("expected same chunk count after idempotent reingest, got %d vs %d", len(afterChunks), len(beforeChunks))
	}
}

func TestDeletePage_RemovesDocumentAndChunks(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(st)

	if _, err := p.IngestDatabase(context.Background(), "db1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc, found, _ := st.GetDocumentByNotionPageID(context.Background(), "p2")
	if !found {
		t.Fatalf("expected p2 to exist before delete")
	}

	if err := p.DeletePage(context.Background(), "p2"); err != nil {
		t.Fatalf("delete page: %v", err)
	}

	_, found, err := st.GetDocumentByNotionPageID(context.Background(), "p2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected p2 to be gone after delete")
	}
	if remaining := chunksOf(t, st, doc.ID); len(remaining) != 0 {
		t.Fatalf("expected chunks to cascade-delete, got %d remaining", len(remaining))
	}
}
