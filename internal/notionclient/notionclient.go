// Package notionclient talks to the external hierarchical-page API the
// ingestion pipeline sources pages from. It is kept thin and
// interface-seamed: internal/ingest depends only on PageSource.
package notionclient

import "context"

// MediaRef is one multimedia reference collected while walking a page's
// block tree (image, file, video, or bookmark), in linear document order.
type MediaRef struct {
	Kind     string // "image" | "file" | "video" | "bookmark"
	URL      string
	Caption  string
	Position int
}

// Page is the plain-text reconstruction of a remote page plus its
// multimedia references and raw properties for metadata extraction.
type Page struct {
	PageID         string
	DatabaseID     string
	Title          string
	Content        string
	MediaRefs      []MediaRef
	URL            string
	CreatedTime    string
	LastEditedTime string
	Properties     map[string]any
}

// PageSource is the seam internal/ingest depends on; NewClient's *Client
// satisfies it, and tests supply a fake.
type PageSource interface {
	// ListPages returns every page currently in databaseID, paginating
	// internally. Pages come back fully rendered (block tree already
	// walked into Content/MediaRefs).
	ListPages(ctx context.Context, databaseID string) ([]Page, error)
	// GetPage fetches and renders a single page by its external ID.
	GetPage(ctx context.Context, pageID string) (Page, error)
}
