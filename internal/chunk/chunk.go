// Package chunk splits a document's (title, content) into an ordered list
// of chunks honoring a token budget and, where possible, structural
// boundaries. Two interchangeable strategies are provided: a paragraph
// baseline and a section-aware article strategy used for production
// ingestion.
package chunk

import "context"

// Type tags the structural role of a chunk, mirrored onto DocumentChunk.chunk_type.
type Type string

const (
	TypeContent       Type = "content"
	TypeHeader        Type = "header"
	TypeSection       Type = "section"
	TypeNotes         Type = "notes"
	TypeHighlight     Type = "highlight"
	TypeDocumentation Type = "documentation"
)

// PositionMetadata captures a chunk's position within its document.
type PositionMetadata struct {
	Index            int     `json:"index"`
	Total            int     `json:"total"`
	IsFirst          bool    `json:"is_first"`
	IsLast           bool    `json:"is_last"`
	RelativePosition float64 `json:"relative_position"`
}

// Chunk is the chunker's output unit, prior to embedding/enrichment.
type Chunk struct {
	Content          string
	Index            int
	SectionTitle     string
	SectionLevel     int
	Hierarchy        []string
	Type             Type
	PositionMetadata PositionMetadata
}

// Options configures a chunking run. MaxTokens and OverlapTokens are
// expressed in the shared tokenize.Counter's tokens.
type Options struct {
	Strategy      string // "paragraph" or "article"
	MaxTokens     int
	OverlapTokens int
}

const (
	StrategyParagraph = "paragraph"
	StrategyArticle   = "article"
)

// DefaultMaxTokens is the spec's default per-chunk token budget.
const DefaultMaxTokens = 1000

// Tokenizer is the minimal counting capability chunkers depend on.
type Tokenizer interface {
	Count(s string) int
}

// Chunker splits (title, content) into ordered chunks.
type Chunker interface {
	Chunk(ctx context.Context, title, content string, opt Options) ([]Chunk, error)
}

// New returns the Chunker selected by strategy, defaulting to the
// article strategy when the strategy name is empty or unrecognized.
func New(tok Tokenizer, strategy string) Chunker {
	switch strategy {
	case StrategyParagraph:
		return ParagraphChunker{}
	default:
		return ArticleChunker{Tokenizer: tok}
	}
}

func finalizePositions(chunks []Chunk) {
	n := len(chunks)
	for i := range chunks {
		rel := 0.0
		if n > 1 {
			rel = float64(i) / float64(n-1)
		}
		chunks[i].Index = i
		chunks[i].PositionMetadata = PositionMetadata{
			Index:            i,
			Total:            n,
			IsFirst:          i == 0,
			IsLast:           i == n-1,
			RelativePosition: rel,
		}
	}
}
