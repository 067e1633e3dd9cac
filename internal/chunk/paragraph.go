package chunk

import (
	"context"
	"regexp"
	"strings"
)

var paragraphSplitRe = regexp.MustCompile(`\n{2,}`)

// ParagraphChunker implements the baseline strategy used by the basic
// retrieval benchmark: split on runs of two or more newlines and emit one
// chunk per non-empty paragraph. No merging, no overlap.
type ParagraphChunker struct{}

func (ParagraphChunker) Chunk(_ context.Context, _, content string, _ Options) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	paras := paragraphSplitRe.Split(content, -1)
	var out []Chunk
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, Chunk{Content: p, Type: TypeContent})
	}
	finalizePositions(out)
	return out, nil
}
