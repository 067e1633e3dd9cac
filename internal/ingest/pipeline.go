// Package ingest orchestrates the fetch -> tokenize -> embed-or-summarize
// -> chunk-or-not -> store pipeline for a database's pages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/fyang0507/notion-rag-core/internal/chunk"
	"github.com/fyang0507/notion-rag-core/internal/embed"
	"github.com/fyang0507/notion-rag-core/internal/enrich"
	"github.com/fyang0507/notion-rag-core/internal/notionclient"
	"github.com/fyang0507/notion-rag-core/internal/observability"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

// redactedProperties marshals a Notion page's custom properties for
// diagnostic logging, redacting any key that looks like a credential —
// Notion properties are user-defined and occasionally carry pasted tokens.
func redactedProperties(props map[string]any) json.RawMessage {
	raw, err := json.Marshal(props)
	if err != nil {
		return json.RawMessage("{}")
	}
	return observability.RedactJSON(raw)
}

// Tokenizer is the counting dependency the pipeline needs for sizing
// decisions.
type Tokenizer interface {
	Count(s string) int
}

// Options configures a Pipeline's sizing and batching behavior. These
// mirror spec.md §4.E/§6's per-database sync settings.
type Options struct {
	MaxEmbeddingTokens int // ≈ provider cap; beyond this the document is summarized, not embedded whole
	MaxChunkTokens     int // beyond this the document is chunked
	ChunkOverlapTokens int
	BatchSize          int // pages per batch
	InterBatchPause    time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxEmbeddingTokens <= 0 {
		o.MaxEmbeddingTokens = 8000
	}
	if o.MaxChunkTokens <= 0 {
		o.MaxChunkTokens = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	return o
}

// Report summarizes one IngestDatabase run.
type Report struct {
	DatabaseID      string
	PagesProcessed  int
	PagesFailed     int
	PagesCompleted  int
	FailedPageIDs   []string
}

// Pipeline wires the per-page stages together.
type Pipeline struct {
	Source    notionclient.PageSource
	Tokenizer Tokenizer
	Chunker   chunk.Chunker
	Enricher  *enrich.Enricher
	Embedder  embed.Embedder
	Store     store.Store
	// VectorIndex, when set, is kept in sync with every chunk write so it
	// stays usable as retrieve.Pipeline's candidate-generation backend
	// (config's store.backend=qdrant).
	VectorIndex store.VectorIndex
	Log         zerolog.Logger
	Opt         Options
}

// IngestDatabase fetches every page in databaseID and ingests it, batching
// pages with an inter-batch pause; a single page's failure marks that
// document failed and is recorded in the report without aborting the rest
// of the batch.
func (p *Pipeline) IngestDatabase(ctx context.Context, databaseID string) (Report, error) {
	opt := p.Opt.withDefaults()
	report := Report{DatabaseID: databaseID}

	pages, err := p.Source.ListPages(ctx, databaseID)
	if err != nil {
		return report, fmt.Errorf("%w: list pages for %s: %v", ragerrors.TransientRemote, databaseID, err)
	}

	for start := 0; start < len(pages); start += opt.BatchSize {
		end := start + opt.BatchSize
		if end > len(pages) {
			end = len(pages)
		}
		for _, page := range pages[start:end] {
			report.PagesProcessed++
			if err := p.ingestPage(ctx, page, opt); err != nil {
				report.PagesFailed++
				report.FailedPageIDs = append(report.FailedPageIDs, page.PageID)
				p.Log.Warn().Err(err).Str("notion_page_id", page.PageID).
					RawJSON("properties", redactedProperties(page.Properties)).
					Msg("page ingest failed")
				continue
			}
			report.PagesCompleted++
		}
		if end < len(pages) && opt.InterBatchPause > 0 {
			select {
			case <-time.After(opt.InterBatchPause):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}
	}

	return report, nil
}

// ReingestPage deletes a page's existing chunks and metadata (the only
// supported edit path) then re-runs the full pipeline for it.
func (p *Pipeline) ReingestPage(ctx context.Context, pageID string) error {
	existing, found, err := p.Store.GetDocumentByNotionPageID(ctx, pageID)
	if err != nil {
		return err
	}
	if found {
		if err := p.Store.DeleteChunksByDocument(ctx, existing.ID); err != nil {
			return err
		}
		if err := p.Store.DeleteMetadataByDocument(ctx, existing.ID); err != nil {
			return err
		}
	}
	page, err := p.Source.GetPage(ctx, pageID)
	if err != nil {
		return fmt.Errorf("%w: fetch page %s: %v", ragerrors.TransientRemote, pageID, err)
	}
	return p.ingestPage(ctx, page, p.Opt.withDefaults())
}

// DeletePage removes a document entirely (webhook page.deleted path);
// chunks and metadata cascade via the document's foreign keys. A
// configured VectorIndex is not swept here — the Store has no bulk
// chunk-listing API to drive per-point deletes from — so a qdrant-backed
// deployment accumulates orphaned points for deleted documents; retrieval
// still reads chunk rows back through the Store's GetChunk before
// returning a result (see retrieve.Pipeline.matchViaVectorIndex), so a
// stale point resolves to a lookup miss rather than a wrong answer.
func (p *Pipeline) DeletePage(ctx context.Context, pageID string) error {
	return p.Store.DeleteDocumentByNotionPageID(ctx, pageID)
}

func (p *Pipeline) ingestPage(ctx context.Context, page notionclient.Page, opt Options) error {
	combined := page.Title + "\n" + page.Content
	tokenCount := p.Tokenizer.Count(combined)

	doc := store.Document{
		NotionPageID:         page.PageID,
		NotionDatabaseID:     page.DatabaseID,
		Title:                page.Title,
		Content:              page.Content,
		PageURL:              page.URL,
		ContentType:          store.ContentDocument,
		TokenCount:           tokenCount,
		NotionProperties:     page.Properties,
		ExtractedMetadata:    map[string]any{},
		ProcessingStatus:     store.StatusProcessing,
	}

	docID, err := p.Store.UpsertDocument(ctx, doc)
	if err != nil {
		return err
	}
	doc.ID = docID

	if err := p.embedOrSummarize(ctx, &doc, combined, opt); err != nil {
		_ = p.Store.SetDocumentStatus(ctx, docID, store.StatusFailed)
		return err
	}

	if tokenCount > opt.MaxChunkTokens {
		if err := p.chunkDocument(ctx, &doc, opt); err != nil {
			_ = p.Store.SetDocumentStatus(ctx, docID, store.StatusFailed)
			return err
		}
	} else {
		doc.IsChunked = false
		doc.ChunkCount = 0
	}

	if err := extractMetadata(ctx, p.Store, doc); err != nil {
		_ = p.Store.SetDocumentStatus(ctx, docID, store.StatusFailed)
		return err
	}

	doc.ProcessingStatus = store.StatusCompleted
	if _, err := p.Store.UpsertDocument(ctx, doc); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) embedOrSummarize(ctx context.Context, doc *store.Document, combined string, opt Options) error {
	if doc.TokenCount <= opt.MaxEmbeddingTokens {
		vec, err := p.Embedder.EmbedOne(ctx, combined)
		if err != nil {
			return fmt.Errorf("%w: embed document: %v", ragerrors.EmbedFailure, err)
		}
		v := pgvector.NewVector(vec)
		doc.ContentEmbedding = &v
		return nil
	}

	summary, err := p.Enricher.DocumentSummary(ctx, doc.Title, doc.Content)
	if err != nil {
		return fmt.Errorf("%w: summarize document: %v", ragerrors.LLMFailure, err)
	}
	doc.DocumentSummary = &summary
	doc.ExtractedMetadata["ai_generated_summary"] = summary

	vec, err := p.Embedder.EmbedOne(ctx, doc.Title+"\n"+summary)
	if err != nil {
		return fmt.Errorf("%w: embed summary: %v", ragerrors.EmbedFailure, err)
	}
	v := pgvector.NewVector(vec)
	doc.ContentEmbedding = &v
	doc.SummaryEmbedding = &v
	return nil
}

func (p *Pipeline) chunkDocument(ctx context.Context, doc *store.Document, opt Options) error {
	chunks, err := p.Chunker.Chunk(ctx, doc.Title, doc.Content, chunk.Options{
		MaxTokens:     opt.MaxChunkTokens,
		OverlapTokens: opt.ChunkOverlapTokens,
	})
	if err != nil {
		return fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		doc.IsChunked = false
		return nil
	}

	docSummary := ""
	if doc.DocumentSummary != nil {
		docSummary = *doc.DocumentSummary
	}
	enriched, err := p.Enricher.EnrichChunks(ctx, doc.Title, docSummary, chunks)
	if err != nil {
		return fmt.Errorf("enrich chunks: %w", err)
	}

	contents := make([]string, len(chunks))
	contextual := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
		contextual[i] = enriched[i].ContextualContent
	}
	contentVecs, err := p.Embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return fmt.Errorf("%w: embed chunk content batch: %v", ragerrors.EmbedFailure, err)
	}
	contextualVecs, err := p.Embedder.EmbedBatch(ctx, contextual)
	if err != nil {
		return fmt.Errorf("%w: embed chunk contextual batch: %v", ragerrors.EmbedFailure, err)
	}

	rows := make([]store.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = store.DocumentChunk{
			ID:              uuid.New(),
			DocumentID:      doc.ID,
			ChunkOrder:      c.Index,
			Content:         c.Content,
			TokenCount:      p.Tokenizer.Count(c.Content),
			ChunkContext:    enriched[i].ChunkContext,
			ChunkSummary:    enriched[i].ChunkSummary,
			DocumentSection: c.SectionTitle,
			SectionHierarchy: c.Hierarchy,
			ChunkType:       store.ChunkType(c.Type),
			ChunkPositionMetadata: store.PositionMetadata{
				Index:            c.PositionMetadata.Index,
				Total:            c.PositionMetadata.Total,
				IsFirst:          c.PositionMetadata.IsFirst,
				IsLast:           c.PositionMetadata.IsLast,
				RelativePosition: c.PositionMetadata.RelativePosition,
			},
			Embedding:           pgvector.NewVector(contentVecs[i]),
			ContextualEmbedding: pgvector.NewVector(contextualVecs[i]),
		}
	}

	if _, err := p.Store.InsertChunks(ctx, rows); err != nil {
		return err
	}
	// Second pass: link chunks only after every insert has succeeded, per
	// spec.md §4.E ordering guarantee.
	if err := p.Store.LinkChunks(ctx, doc.ID); err != nil {
		return err
	}

	if p.VectorIndex != nil {
		for i, row := range rows {
			if err := p.VectorIndex.Upsert(ctx, row.ID.String(), contextualVecs[i], map[string]string{
				"document_id": doc.ID.String(),
			}); err != nil {
				p.Log.Warn().Err(err).Str("chunk_id", row.ID.String()).Msg("vector index upsert failed")
			}
		}
	}

	doc.IsChunked = true
	doc.ChunkCount = len(rows)
	return nil
}
