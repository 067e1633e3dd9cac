// Package enrich produces the LLM-generated context and summary strings
// attached to each chunk before it is embedded and stored.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fyang0507/notion-rag-core/internal/chunk"
	"github.com/fyang0507/notion-rag-core/internal/llm"

	"github.com/rs/zerolog"
)

const (
	batchSize          = 3
	contextPreviewLen  = 500
	summaryFallbackLen = 100
)

const (
	documentSummaryPrompt = "Summarize the following document in 2-3 concise sentences. " +
		"Respond with the summary only, no preamble.\n\nTitle: %s\n\nContent:\n%s"

	chunkContextPrompt = "You are describing how one section relates to its parent document. " +
		"Respond with 1-2 sentences, no preamble.\n\n" +
		"Document title: %s\nDocument summary: %s\nSection title: %s\nSection excerpt:\n%s"

	chunkSummaryPrompt = "Summarize the following text in exactly one sentence. " +
		"Respond with the sentence only, no preamble.\n\n%s"
)

// Tokenizer is the minimal counting dependency enrichment needs for
// truncation bookkeeping.
type Tokenizer interface {
	Count(s string) int
}

// Enriched is the per-chunk enrichment output merged back onto the chunk
// before embedding and storage.
type Enriched struct {
	ChunkContext      string
	ChunkSummary      string
	ContextualContent string
	ContextFellBack   bool
	SummaryFellBack   bool
}

// Enricher produces document- and chunk-level context via an LLM, with
// deterministic fallbacks on failure.
type Enricher struct {
	chat       llm.ChatProvider
	tok        Tokenizer
	interBatch time.Duration
	log        zerolog.Logger
}

// New constructs an Enricher. interBatch is the pause between batches of
// concurrent LLM calls; log receives warn-level records for any fallback.
func New(chat llm.ChatProvider, tok Tokenizer, interBatch time.Duration, log zerolog.Logger) *Enricher {
	return &Enricher{chat: chat, tok: tok, interBatch: interBatch, log: log}
}

// DocumentSummary produces a 2-3 sentence document summary. On LLM failure
// it returns an empty string and a non-nil error; callers decide the
// fallback (spec.md leaves document_summary nil on failure).
func (e *Enricher) DocumentSummary(ctx context.Context, title, content string) (string, error) {
	prompt := fmt.Sprintf(documentSummaryPrompt, title, e.boundForPrompt(content))
	resp, err := e.chat.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// EnrichChunks runs the per-chunk context/summary/composition/adjacency
// steps over an ordered slice of chunks, in batches of 3 with concurrent
// calls inside each batch and a fixed pause between batches. A single
// chunk's LLM failure degrades to the deterministic fallback for that
// chunk only; it never aborts the batch.
func (e *Enricher) EnrichChunks(ctx context.Context, docTitle, docSummary string, chunks []chunk.Chunk) ([]Enriched, error) {
	out := make([]Enriched, len(chunks))

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			c := chunks[i]
			g.Go(func() error {
				out[i] = e.enrichOne(gctx, docTitle, docSummary, c)
				return nil
			})
		}
		// errgroup here is used purely for structured concurrency, not
		// error propagation: enrichOne never returns an error, so Wait
		// only blocks until the batch's goroutines finish.
		_ = g.Wait()

		if end < len(chunks) && e.interBatch > 0 {
			select {
			case <-time.After(e.interBatch):
			case <-ctx.Done():
				return out, ctx.Err()
			}
		}
	}

	assignAdjacency(out)
	return out, nil
}

func (e *Enricher) enrichOne(ctx context.Context, docTitle, docSummary string, c chunk.Chunk) Enriched {
	preview := truncateRunes(c.Content, contextPreviewLen)

	var enr Enriched

	contextPrompt := fmt.Sprintf(chunkContextPrompt, docTitle, docSummary, c.SectionTitle, preview)
	if resp, err := e.chat.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: contextPrompt}},
		Temperature: 0.2,
		MaxTokens:   120,
	}); err == nil {
		enr.ChunkContext = strings.TrimSpace(resp.Content)
	} else {
		e.log.Warn().Err(err).Str("section", c.SectionTitle).Msg("chunk context llm call failed, using fallback")
		enr.ChunkContext = fmt.Sprintf("This section is part of '%s' and discusses %s.", docTitle, c.SectionTitle)
		enr.ContextFellBack = true
	}

	summaryPrompt := fmt.Sprintf(chunkSummaryPrompt, c.Content)
	if resp, err := e.chat.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: summaryPrompt}},
		Temperature: 0.2,
		MaxTokens:   80,
	}); err == nil {
		enr.ChunkSummary = strings.TrimSpace(resp.Content)
	} else {
		e.log.Warn().Err(err).Str("section", c.SectionTitle).Msg("chunk summary llm call failed, using fallback")
		enr.ChunkSummary = firstLineTruncated(c.Content, summaryFallbackLen)
		enr.SummaryFellBack = true
	}

	enr.ContextualContent = enr.ChunkContext + "\n\n" + c.Content
	return enr
}

// boundForPrompt trims content that would blow past the document-summary
// prompt's practical token budget, using the configured tokenizer rather
// than a blind byte cutoff.
func (e *Enricher) boundForPrompt(content string) string {
	const maxPromptTokens = 4000
	if e.tok == nil || e.tok.Count(content) <= maxPromptTokens {
		return content
	}
	// Binary-search would be more precise; a single proportional cut keeps
	// this cheap since document summary calls happen once per document.
	ratio := float64(maxPromptTokens) / float64(e.tok.Count(content))
	cut := int(float64(len(content)) * ratio)
	if cut >= len(content) {
		return content
	}
	return content[:cut]
}

func firstLineTruncated(content string, n int) string {
	line := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		line = content[:idx]
	}
	return truncateRunes(line, n)
}

// truncateRunes cuts s to at most n runes, so multibyte (e.g. CJK) content
// is never split mid-rune.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// assignAdjacency is a placeholder step retained for documentation symmetry
// with spec.md §4.C step 5; prev/next linkage is resolved against persistent
// IDs by the ingestion pipeline after insertion, so there is nothing to do
// here beyond confirming ordering is stable.
func assignAdjacency(_ []Enriched) {}
