package chunk

import (
	"context"
	"strings"
	"testing"
)

// wordTokenizer counts whitespace-separated words; good enough for
// deterministic, dependency-free chunking tests.
type wordTokenizer struct{}

func (wordTokenizer) Count(s string) int {
	return len(strings.Fields(s))
}

func TestArticleChunker_EmptyInput(t *testing.T) {
	a := ArticleChunker{Tokenizer: wordTokenizer{}}
	out, err := a.Chunk(context.Background(), "Doc", "", Options{MaxTokens: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no chunks, got %d", len(out))
	}
}

func TestArticleChunker_HeaderHierarchy(t *testing.T) {
	content := `# Intro
intro text here.

## Background
background details go here in this section.

### Details
fine details go here.
`
	a := ArticleChunker{Tokenizer: wordTokenizer{}}
	out, err := a.Chunk(context.Background(), "Guide", content, Options{MaxTokens: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 chunks (one per section), got %d: %+v", len(out), out)
	}
	if out[0].SectionTitle != "Intro" || out[0].SectionLevel != 1 {
		t.Fatalf("unexpected first chunk section: %+v", out[0])
	}
	if out[1].Type != TypeHeader {
		t.Fatalf("expected level-2 section to be chunk_type header, got %v", out[1].Type)
	}
	if out[2].Type != TypeContent {
		t.Fatalf("expected level-3 section to be chunk_type content, got %v", out[2].Type)
	}
	if len(out[2].Hierarchy) != 3 || out[2].Hierarchy[0] != "Intro" || out[2].Hierarchy[2] != "Details" {
		t.Fatalf("unexpected hierarchy: %+v", out[2].Hierarchy)
	}
}

func TestArticleChunker_PacksAndOverlaps(t *testing.T) {
	para := func(n int, word string) string {
		words := make([]string, n)
		for i := range words {
			words[i] = word
		}
		return strings.Join(words, " ") + "."
	}
	// Five ~20-word paragraphs under one section; budget forces multiple chunks.
	content := strings.Join([]string{
		para(20, "alpha"),
		para(20, "bravo"),
		para(20, "charlie"),
		para(20, "delta"),
		para(20, "echo"),
	}, "\n\n")

	a := ArticleChunker{Tokenizer: wordTokenizer{}}
	out, err := a.Chunk(context.Background(), "Guide", content, Options{MaxTokens: 45, OverlapTokens: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(out))
	}
	if out[0].PositionMetadata.IsFirst != true {
		t.Fatalf("first chunk should be flagged IsFirst")
	}
	last := out[len(out)-1]
	if !last.PositionMetadata.IsLast {
		t.Fatalf("last chunk should be flagged IsLast")
	}
	// Every chunk after the first should carry the previous chunk's last
	// word as an overlap seed.
	for i := 1; i < len(out); i++ {
		prevWords := strings.Fields(out[i-1].Content)
		if len(prevWords) == 0 {
			continue
		}
		lastWord := prevWords[len(prevWords)-1]
		if !strings.Contains(out[i].Content, lastWord) {
			t.Fatalf("chunk %d does not appear to carry overlap from previous chunk (missing %q)", i, lastWord)
		}
	}
}

func TestArticleChunker_OversizedParagraphSplitsBySentence(t *testing.T) {
	sentence := func(n int, word string) string {
		words := make([]string, n)
		for i := range words {
			words[i] = word
		}
		return strings.Join(words, " ") + "."
	}
	// One giant paragraph (three long sentences) that exceeds the budget on its own.
	content := sentence(30, "one") + " " + sentence(30, "two") + " " + sentence(30, "three")

	a := ArticleChunker{Tokenizer: wordTokenizer{}}
	out, err := a.Chunk(context.Background(), "Doc", content, Options{MaxTokens: 40})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) < 2 {
		t.Fatalf("expected the oversized paragraph to split into multiple chunks, got %d", len(out))
	}
}
