// Package retrieve implements the query -> embed -> filtered vector search
// -> adjacent-chunk enrichment -> rerank pipeline, per spec.md §4.F.
package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/fyang0507/notion-rag-core/internal/embed"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

// BoostFactors configures the additive rerank boosts of spec.md §4.F
// step 5.
type BoostFactors struct {
	Context  float64
	Summary  float64
	Section  float64
}

func (b BoostFactors) withDefaults() BoostFactors {
	if b.Context == 0 {
		b.Context = 0.05
	}
	if b.Summary == 0 {
		b.Summary = 0.03
	}
	if b.Section == 0 {
		b.Section = 0.02
	}
	return b
}

// Options configures a Pipeline.
type Options struct {
	MatchThreshold float64 // default 0.1 per spec.md §6
	Boosts         BoostFactors
}

func (o Options) withDefaults() Options {
	if o.MatchThreshold == 0 {
		o.MatchThreshold = 0.1
	}
	o.Boosts = o.Boosts.withDefaults()
	return o
}

// RetrievedChunk is one result record, matching the fields spec.md §4.F
// step 6 requires the pipeline to return.
type RetrievedChunk struct {
	ChunkID            string
	DocumentID         string
	DocumentTitle      string
	PageURL            string
	Content            string
	EnrichedContent    string
	CombinedScore      float64
	FinalScore         float64
	ChunkContext       string
	ChunkSummary       string
	DocumentSection    string
	HasAdjacentContext bool
	Metadata           map[string]any
}

// Pipeline wires the search dependencies together.
type Pipeline struct {
	Embedder embed.Embedder
	Store    store.Store
	// VectorIndex, when set, generates search candidates via an external
	// vector backend (e.g. Qdrant) instead of the Store's own vector
	// search, per config's store.backend selection.
	VectorIndex store.VectorIndex
	Opt         Options
}

// Search embeds query, runs the blended vector search (or the metadata
// filter variant when filters carry metadata predicates), enriches each
// result with its neighbors, reranks, and returns the top k.
func (p *Pipeline) Search(ctx context.Context, query string, filters store.SearchFilters, k int) ([]RetrievedChunk, error) {
	if k <= 0 {
		k = 5
	}
	opt := p.Opt.withDefaults()

	queryVec, err := p.Embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ragerrors.EmbedFailure, err)
	}

	candidateCount := k * 2
	var matches []store.ChunkMatch
	switch {
	case p.VectorIndex != nil:
		matches, err = p.matchViaVectorIndex(ctx, queryVec, candidateCount)
	case len(filters.MetadataFilters) > 0:
		matches, err = p.Store.EnhancedMetadataSearch(ctx, queryVec, filters, opt.MatchThreshold, candidateCount)
	default:
		matches, err = p.Store.MatchContextualChunks(ctx, queryVec, filters, opt.MatchThreshold, candidateCount)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ragerrors.StoreFailure, err)
	}
	if len(matches) == 0 {
		return nil, ragerrors.NoResults
	}

	results := p.enrichAndRerank(ctx, matches, k, opt)

	sort.Slice(results, func(i, j int) bool { return results[i].FinalScore > results[j].FinalScore })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// matchViaVectorIndex turns a VectorIndex's ranked chunk IDs into full
// store.ChunkMatch rows, recomputing the blended similarity spec.md §4.F
// step 3 defines (0.7*contextual + 0.3*content) from the chunk's own
// stored embeddings, since VectorIndex only answers "which IDs are near",
// not the two-embedding blend a Store's own vector search does in SQL.
func (p *Pipeline) matchViaVectorIndex(ctx context.Context, queryVec []float32, k int) ([]store.ChunkMatch, error) {
	hits, err := p.VectorIndex.Search(ctx, queryVec, k, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: vector index search: %v", ragerrors.StoreFailure, err)
	}
	matches := make([]store.ChunkMatch, 0, len(hits))
	for _, h := range hits {
		chunkID, err := uuid.Parse(h.ChunkID)
		if err != nil {
			continue
		}
		chunk, err := p.Store.GetChunk(ctx, chunkID)
		if err != nil {
			continue
		}
		doc, err := p.Store.GetDocument(ctx, chunk.DocumentID)
		if err != nil {
			continue
		}
		contentSim := cosine(queryVec, chunk.Embedding.Slice())
		contextualSim := cosine(queryVec, chunk.ContextualEmbedding.Slice())
		matches = append(matches, store.ChunkMatch{
			Chunk:                chunk,
			Document:             doc,
			ContentSimilarity:    contentSim,
			ContextualSimilarity: contextualSim,
			CombinedScore:        0.7*contextualSim + 0.3*contentSim,
		})
	}
	return matches, nil
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// enrichAndRerank resolves each match's neighbors with bounded concurrency
// (weight k, grounded on sefii.RetrieveWithContext's per-chunk neighbor
// lookups) and computes the final rerank score.
func (p *Pipeline) enrichAndRerank(ctx context.Context, matches []store.ChunkMatch, k int, opt Options) []RetrievedChunk {
	sem := semaphore.NewWeighted(int64(k))
	results := make([]RetrievedChunk, len(matches))

	done := make(chan struct{}, len(matches))
	for i, m := range matches {
		i, m := i, m
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = p.buildResult(ctx, m, opt)
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			results[i] = p.buildResult(ctx, m, opt)
		}()
	}
	for range matches {
		<-done
	}
	return results
}

func (p *Pipeline) buildResult(ctx context.Context, m store.ChunkMatch, opt Options) RetrievedChunk {
	r := RetrievedChunk{
		ChunkID:         m.Chunk.ID.String(),
		DocumentID:      m.Document.ID.String(),
		DocumentTitle:   m.Document.Title,
		PageURL:         m.Document.PageURL,
		Content:         m.Chunk.Content,
		EnrichedContent: m.Chunk.Content,
		CombinedScore:   m.CombinedScore,
		ChunkContext:    m.Chunk.ChunkContext,
		ChunkSummary:    m.Chunk.ChunkSummary,
		DocumentSection: m.Chunk.DocumentSection,
		Metadata:        m.Document.ExtractedMetadata,
	}

	withCtx, err := p.Store.GetChunkWithContext(ctx, m.Chunk.ID, true)
	if err == nil {
		r.EnrichedContent = composeEnriched(withCtx)
		r.HasAdjacentContext = withCtx.Prev != nil || withCtx.Next != nil
	}
	// A per-chunk RPC failure degrades to the chunk's own content with
	// has_adjacent_context=false; it never fails the whole query.

	r.FinalScore = r.CombinedScore
	if r.ChunkContext != "" {
		r.FinalScore += opt.Boosts.Context
	}
	if r.ChunkSummary != "" {
		r.FinalScore += opt.Boosts.Summary
	}
	if r.HasAdjacentContext {
		r.FinalScore += opt.Boosts.Context / 2
	}
	if r.DocumentSection != "" {
		r.FinalScore += opt.Boosts.Section
	}
	return r
}

// composeEnriched builds the enriched_content string of spec.md §4.F
// step 4, omitting any section whose source is nil.
func composeEnriched(wc store.ChunkWithContext) string {
	s := ""
	if wc.Prev != nil && wc.Prev.ChunkSummary != "" {
		s += "[Previous: " + wc.Prev.ChunkSummary + "]\n\n"
	}
	if wc.Main.ChunkContext != "" {
		s += "[Context: " + wc.Main.ChunkContext + "]\n\n"
	}
	s += wc.Main.Content
	if wc.Next != nil && wc.Next.ChunkSummary != "" {
		s += "\n\n[Following: " + wc.Next.ChunkSummary + "]"
	}
	return s
}
