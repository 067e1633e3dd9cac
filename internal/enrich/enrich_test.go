package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fyang0507/notion-rag-core/internal/chunk"
	"github.com/fyang0507/notion-rag-core/internal/llm"
)

type fakeChat struct {
	fail      map[string]bool // keyed by a substring of the prompt to force failure
	responses []string
}

func (f *fakeChat) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	prompt := req.Messages[0].Content
	for substr, shouldFail := range f.fail {
		if shouldFail && contains(prompt, substr) {
			return llm.CompletionResponse{}, errors.New("simulated provider failure")
		}
	}
	return llm.CompletionResponse{Content: "generated response"}, nil
}

func (f *fakeChat) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamDelta, func() error) {
	ch := make(chan llm.StreamDelta)
	close(ch)
	return ch, func() error { return nil }
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func testChunks() []chunk.Chunk {
	return []chunk.Chunk{
		{Content: "First chunk content.\nMore detail.", SectionTitle: "Intro"},
		{Content: "Second chunk content.\nMore detail.", SectionTitle: "Body"},
		{Content: "Third chunk content.\nMore detail.", SectionTitle: "Body"},
		{Content: "Fourth chunk content.\nMore detail.", SectionTitle: "Conclusion"},
	}
}

func TestEnrichChunks_AllSucceed(t *testing.T) {
	e := New(&fakeChat{}, nil, time.Millisecond, zerolog.Nop())
	out, err := e.EnrichChunks(context.Background(), "Doc", "A short summary.", testChunks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 enriched entries, got %d", len(out))
	}
	for i, o := range out {
		if o.ContextFellBack || o.SummaryFellBack {
			t.Fatalf("chunk %d unexpectedly fell back: %+v", i, o)
		}
		if o.ContextualContent == "" {
			t.Fatalf("chunk %d missing contextual content", i)
		}
	}
}

func TestEnrichChunks_PerChunkFailureIsolated(t *testing.T) {
	fake := &fakeChat{fail: map[string]bool{"Body": true}}
	e := New(fake, nil, time.Millisecond, zerolog.Nop())
	out, err := e.EnrichChunks(context.Background(), "Doc", "A short summary.", testChunks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(out))
	}
	if out[0].ContextFellBack {
		t.Fatalf("first chunk (Intro section) should not have fallen back")
	}
	if !out[1].ContextFellBack || !out[2].ContextFellBack {
		t.Fatalf("Body-section chunks should have fallen back to deterministic context")
	}
	if out[1].ChunkContext == "" {
		t.Fatalf("expected a fallback context string, got empty")
	}
}

func TestDocumentSummary_ReturnsError(t *testing.T) {
	fake := &fakeChat{fail: map[string]bool{"Title": true}}
	e := New(fake, nil, time.Millisecond, zerolog.Nop())
	_, err := e.DocumentSummary(context.Background(), "Doc", "content")
	if err == nil {
		t.Fatalf("expected an error from a failing provider")
	}
}
