package chunk

import (
	"context"
	"regexp"
	"strings"
)

var (
	headerRe    = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	sentenceRe  = regexp.MustCompile(`[^.!?]+[.!?]+(\s+|$)`)
	phraseRe    = regexp.MustCompile(`[^,;]+[,;]?`)
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
)

// section is one header-delimited region of the document, carrying its
// ancestor header titles so chunks can report where in the document they sit.
type section struct {
	title     string
	level     int
	hierarchy []string
	text      string
}

// ArticleChunker implements the two-pass production-ingestion strategy:
// parse the document into header-delimited sections, then greedily pack
// each section's paragraphs into token-bounded chunks with a sentence-level
// overlap tail carried into the next chunk.
type ArticleChunker struct {
	Tokenizer Tokenizer
}

func (a ArticleChunker) Chunk(_ context.Context, title, content string, opt Options) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	maxTokens := opt.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	overlap := opt.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}

	sections := parseSections(content)
	var out []Chunk
	for _, sec := range sections {
		if strings.TrimSpace(sec.text) == "" {
			continue
		}
		out = append(out, a.chunkSection(title, sec, maxTokens, overlap)...)
	}
	finalizePositions(out)
	return out, nil
}

// parseSections linearly scans lines, maintaining a stack of open header
// titles so each emitted section carries its full ancestor hierarchy.
func parseSections(content string) []section {
	lines := strings.Split(content, "\n")

	var sections []section
	var stack []struct {
		title string
		level int
	}
	var buf strings.Builder

	flush := func() {
		text := buf.String()
		buf.Reset()
		if strings.TrimSpace(text) == "" {
			return
		}
		title, level := "", 0
		var hierarchy []string
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			title, level = top.title, top.level
			for _, s := range stack {
				hierarchy = append(hierarchy, s.title)
			}
		}
		sections = append(sections, section{title: title, level: level, hierarchy: hierarchy, text: text})
	}

	for _, ln := range lines {
		if m := headerRe.FindStringSubmatch(ln); m != nil {
			flush()
			level := len(m[1])
			title := m[2]
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, struct {
				title string
				level int
			}{title: title, level: level})
			continue
		}
		buf.WriteString(ln)
		buf.WriteString("\n")
	}
	flush()
	return sections
}

func (a ArticleChunker) chunkSection(docTitle string, sec section, maxTokens, overlapTokens int) []Chunk {
	prefix := titlePrefix(docTitle, sec.title)
	available := maxTokens - a.Tokenizer.Count(prefix)
	if available < 1 {
		available = 1
	}

	chunkType := TypeContent
	if sec.title != "" && sec.level <= 2 {
		chunkType = TypeHeader
	}

	paragraphs := splitParagraphs(sec.text)

	var out []Chunk
	var cur []string
	curTokens := 0

	emit := func() {
		if len(cur) == 0 {
			return
		}
		body := strings.Join(cur, "\n\n")
		out = append(out, Chunk{
			Content:      prefix + body,
			SectionTitle: sec.title,
			SectionLevel: sec.level,
			Hierarchy:    append([]string(nil), sec.hierarchy...),
			Type:         chunkType,
		})
		cur = nil
		curTokens = 0
	}

	seedOverlap := func(prevBody string) {
		if overlapTokens <= 0 || prevBody == "" {
			return
		}
		tail := overlapTail(prevBody, overlapTokens, a.Tokenizer)
		if tail == "" {
			return
		}
		cur = []string{tail}
		curTokens = a.Tokenizer.Count(tail)
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraTokens := a.Tokenizer.Count(para)

		if paraTokens > available {
			// Flush whatever is pending, then split this oversized paragraph
			// on its own, never combining it with neighbors.
			var prevBody string
			if len(cur) > 0 {
				prevBody = strings.Join(cur, "\n\n")
			}
			emit()
			for _, piece := range splitOversizedParagraph(para, available, a.Tokenizer) {
				out = append(out, Chunk{
					Content:      prefix + piece,
					SectionTitle: sec.title,
					SectionLevel: sec.level,
					Hierarchy:    append([]string(nil), sec.hierarchy...),
					Type:         chunkType,
				})
				prevBody = piece
			}
			seedOverlap(prevBody)
			continue
		}

		if curTokens+paraTokens > available && len(cur) > 0 {
			prevBody := strings.Join(cur, "\n\n")
			emit()
			seedOverlap(prevBody)
			curTokens = a.Tokenizer.Count(strings.Join(cur, "\n\n"))
		}

		cur = append(cur, para)
		curTokens += paraTokens
	}
	emit()
	return out
}

func titlePrefix(docTitle, sectionTitle string) string {
	var b strings.Builder
	if docTitle != "" {
		b.WriteString("# ")
		b.WriteString(docTitle)
		b.WriteString("\n")
	}
	if sectionTitle != "" {
		b.WriteString("## ")
		b.WriteString(sectionTitle)
		b.WriteString("\n")
	}
	return b.String()
}

func splitParagraphs(text string) []string {
	return blankLineRe.Split(strings.TrimSpace(text), -1)
}

// splitOversizedParagraph splits a single paragraph that exceeds the
// available budget by sentence, falling back to comma/semicolon phrases
// for any sentence that still exceeds the budget on its own.
func splitOversizedParagraph(para string, available int, tok Tokenizer) []string {
	sentences := splitSentences(para)
	var out []string
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
		curTokens = 0
	}
	for _, s := range sentences {
		st := tok.Count(s)
		if st > available {
			flush()
			for _, ph := range splitPhrases(s) {
				out = append(out, strings.TrimSpace(ph))
			}
			continue
		}
		if curTokens+st > available && cur.Len() > 0 {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(s)
		curTokens += st
	}
	flush()
	if len(out) == 0 {
		out = []string{para}
	}
	return out
}

func splitSentences(text string) []string {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var out []string
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
	}
	if rest := strings.TrimSpace(text[locs[len(locs)-1][1]:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func splitPhrases(text string) []string {
	matches := phraseRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	var out []string
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// overlapTail returns the last up-to-3 sentences of prevBody whose
// cumulative token count stays within overlapTokens.
func overlapTail(prevBody string, overlapTokens int, tok Tokenizer) string {
	sentences := splitSentences(prevBody)
	if len(sentences) > 3 {
		sentences = sentences[len(sentences)-3:]
	}
	var kept []string
	total := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		t := tok.Count(sentences[i])
		if total+t > overlapTokens && len(kept) > 0 {
			break
		}
		kept = append([]string{sentences[i]}, kept...)
		total += t
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}
