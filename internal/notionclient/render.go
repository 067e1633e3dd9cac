package notionclient

import "strings"

// renderBlocks walks a block tree depth-first and reconstructs plain-text
// content (headings, lists, quotes, code fences, tables, bookmark stubs)
// plus a linearly-positioned list of multimedia references, per spec.md
// §4.E step 1.
func renderBlocks(blocks []rawBlock) (string, []MediaRef) {
	var b strings.Builder
	var media []MediaRef
	position := 0
	renderInto(blocks, &b, &media, &position)
	return strings.TrimSpace(b.String()), media
}

func renderInto(blocks []rawBlock, b *strings.Builder, media *[]MediaRef, position *int) {
	for _, blk := range blocks {
		renderOne(blk, b, media, position)
		*position++
	}
}

func renderOne(blk rawBlock, b *strings.Builder, media *[]MediaRef, position *int) {
	switch blk.Type {
	case "paragraph":
		if blk.Paragraph != nil {
			writeLine(b, joinRichText(blk.Paragraph.RichText))
		}
	case "heading_1":
		if blk.Heading1 != nil {
			writeLine(b, "# "+joinRichText(blk.Heading1.RichText))
		}
	case "heading_2":
		if blk.Heading2 != nil {
			writeLine(b, "## "+joinRichText(blk.Heading2.RichText))
		}
	case "heading_3":
		if blk.Heading3 != nil {
			writeLine(b, "### "+joinRichText(blk.Heading3.RichText))
		}
	case "bulleted_list_item":
		if blk.BulletedListItem != nil {
			writeLine(b, "- "+joinRichText(blk.BulletedListItem.RichText))
		}
	case "numbered_list_item":
		if blk.NumberedListItem != nil {
			writeLine(b, "1. "+joinRichText(blk.NumberedListItem.RichText))
		}
	case "quote":
		if blk.Quote != nil {
			writeLine(b, "> "+joinRichText(blk.Quote.RichText))
		}
	case "code":
		if blk.Code != nil {
			writeLine(b, "```"+blk.Code.Language)
			writeLine(b, joinRichText(blk.Code.RichText))
			writeLine(b, "```")
		}
	case "image":
		if blk.Image != nil {
			*media = append(*media, MediaRef{Kind: "image", URL: blk.Image.url(), Caption: blk.Image.captionText(), Position: *position})
		}
	case "file":
		if blk.File != nil {
			*media = append(*media, MediaRef{Kind: "file", URL: blk.File.url(), Caption: blk.File.captionText(), Position: *position})
		}
	case "video":
		if blk.Video != nil {
			*media = append(*media, MediaRef{Kind: "video", URL: blk.Video.url(), Caption: blk.Video.captionText(), Position: *position})
		}
	case "bookmark":
		if blk.Bookmark != nil {
			writeLine(b, "["+joinRichText(blk.Bookmark.Caption)+"]("+blk.Bookmark.URL+")")
			*media = append(*media, MediaRef{Kind: "bookmark", URL: blk.Bookmark.URL, Caption: joinRichText(blk.Bookmark.Caption), Position: *position})
		}
	case "table_row":
		if blk.TableRow != nil {
			cells := make([]string, len(blk.TableRow.Cells))
			for i, c := range blk.TableRow.Cells {
				cells[i] = joinRichText(c)
			}
			writeLine(b, "| "+strings.Join(cells, " | ")+" |")
		}
	}

	if len(blk.Children) > 0 {
		renderInto(blk.Children, b, media, position)
	}
}

func writeLine(b *strings.Builder, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	b.WriteString(line)
	b.WriteString("\n\n")
}
