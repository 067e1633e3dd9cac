package notionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyang0507/notion-rag-core/internal/observability"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

const (
	apiBaseURL      = "https://api.notion.com/v1"
	notionVersion   = "2022-06-28"
	defaultPageSize = 100
)

// Client is an otelhttp-instrumented REST client against the Notion API.
type Client struct {
	http    *http.Client
	token   string
	baseURL string
	limiter *rate.Limiter
}

// NewClient constructs a Client. token is the Notion integration token
// (read from NOTION_ACCESS_TOKEN by the caller, never logged).
func NewClient(token string, requestsPerSecond float64) *Client {
	base := observability.NewHTTPClient(&http.Client{Timeout: 30 * time.Second})
	if requestsPerSecond <= 0 {
		requestsPerSecond = 3
	}
	return &Client{
		http:    base,
		token:   token,
		baseURL: apiBaseURL,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: notion request: %v", ragerrors.TransientRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: notion status %d", ragerrors.TransientRemote, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notion request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// GetPage fetches page metadata and its full block tree, then renders it.
func (c *Client) GetPage(ctx context.Context, pageID string) (Page, error) {
	var raw rawPage
	if err := c.do(ctx, http.MethodGet, "/pages/"+pageID, nil, &raw); err != nil {
		return Page{}, err
	}

	blocks, err := c.listBlocksRecursive(ctx, pageID)
	if err != nil {
		return Page{}, err
	}

	content, media := renderBlocks(blocks)
	title := extractTitle(raw.Properties)

	return Page{
		PageID:         raw.ID,
		DatabaseID:     raw.ParentDatabaseID(),
		Title:          title,
		Content:        content,
		MediaRefs:      media,
		URL:            raw.URL,
		CreatedTime:    raw.CreatedTime,
		LastEditedTime: raw.LastEditedTime,
		Properties:     raw.Properties,
	}, nil
}

// ListPages queries a database's pages, paginating internally, then renders
// each one via GetPage (block children are not returned by the query
// endpoint, so a second fetch per page is required).
func (c *Client) ListPages(ctx context.Context, databaseID string) ([]Page, error) {
	var pages []Page
	var cursor string
	for {
		var resp rawQueryResponse
		body := map[string]any{"page_size": defaultPageSize}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		if err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			page, err := c.GetPage(ctx, r.ID)
			if err != nil {
				return pages, err
			}
			page.DatabaseID = databaseID
			pages = append(pages, page)
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return pages, nil
}

func (c *Client) listBlocksRecursive(ctx context.Context, blockID string) ([]rawBlock, error) {
	var out []rawBlock
	var cursor string
	for {
		var resp rawBlockChildrenResponse
		path := fmt.Sprintf("/blocks/%s/children?page_size=%d", blockID, defaultPageSize)
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		for _, b := range resp.Results {
			if b.HasChildren {
				children, err := c.listBlocksRecursive(ctx, b.ID)
				if err != nil {
					return nil, err
				}
				b.Children = children
			}
			out = append(out, b)
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return out, nil
}
