package notionclient

import "testing"

func rt(s string) []rawRichText { return []rawRichText{{PlainText: s}} }

func TestRenderBlocks_HeadingsAndParagraphs(t *testing.T) {
	blocks := []rawBlock{
		{Type: "heading_1", Heading1: &rawTextBlock{RichText: rt("Intro")}},
		{Type: "paragraph", Paragraph: &rawTextBlock{RichText: rt("Some body text.")}},
		{Type: "bulleted_list_item", BulletedListItem: &rawTextBlock{RichText: rt("first point")}},
	}
	content, media := renderBlocks(blocks)
	if len(media) != 0 {
		t.Fatalf("expected no media refs, got %d", len(media))
	}
	want := []string{"# Intro", "Some body text.", "- first point"}
	for _, w := range want {
		if !contains(content, w) {
			t.Fatalf("expected content to contain %q, got:\n%s", w, content)
		}
	}
}

func TestRenderBlocks_CollectsMediaWithPosition(t *testing.T) {
	blocks := []rawBlock{
		{Type: "paragraph", Paragraph: &rawTextBlock{RichText: rt("before")}},
		{Type: "image", Image: &rawMediaBlock{Type: "external", External: struct {
			URL string `json:"url"`
		}{URL: "https://example.com/img.png"}, Caption: rt("a picture")}},
		{Type: "paragraph", Paragraph: &rawTextBlock{RichText: rt("after")}},
	}
	_, media := renderBlocks(blocks)
	if len(media) != 1 {
		t.Fatalf("expected 1 media ref, got %d", len(media))
	}
	if media[0].Kind != "image" || media[0].URL != "https://example.com/img.png" {
		t.Fatalf("unexpected media ref: %+v", media[0])
	}
	if media[0].Position != 1 {
		t.Fatalf("expected media at position 1, got %d", media[0].Position)
	}
}

func TestRenderBlocks_NestedChildren(t *testing.T) {
	blocks := []rawBlock{
		{
			Type:        "bulleted_list_item",
			HasChildren: true,
			BulletedListItem: &rawTextBlock{RichText: rt("parent item")},
			Children: []rawBlock{
				{Type: "paragraph", Paragraph: &rawTextBlock{RichText: rt("nested detail")}},
			},
		},
	}
	content, _ := renderBlocks(blocks)
	if !contains(content, "parent item") || !contains(content, "nested detail") {
		t.Fatalf("expected both parent and nested content, got:\n%s", content)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
