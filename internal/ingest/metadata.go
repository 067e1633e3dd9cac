package ingest

import (
	"context"
	"time"

	"github.com/fyang0507/notion-rag-core/internal/store"
)

// extractMetadata projects a document's raw Notion properties into typed
// store.DocumentMetadata rows, per spec.md §4.E step 5. Unrecognized
// property shapes are skipped rather than treated as an error: metadata
// promotion is best-effort and must never fail ingestion of the document
// itself.
func extractMetadata(ctx context.Context, st store.Store, doc store.Document) error {
	var rows []store.DocumentMetadata
	for name, raw := range doc.NotionProperties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		row, ok := projectProperty(name, prop)
		if !ok {
			continue
		}
		row.DocumentID = doc.ID
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return st.UpsertMetadata(ctx, rows)
}

func projectProperty(name string, prop map[string]any) (store.DocumentMetadata, bool) {
	row := store.DocumentMetadata{FieldName: name}

	typ, _ := prop["type"].(string)
	switch typ {
	case "title", "rich_text":
		if s, ok := plainTextOf(prop[typ]); ok {
			row.TextValue = &s
			return row, true
		}
	case "select":
		if sel, ok := prop["select"].(map[string]any); ok {
			if n, ok := sel["name"].(string); ok {
				row.TextValue = &n
				return row, true
			}
		}
	case "multi_select":
		if arr, ok := prop["multi_select"].([]any); ok {
			var vals []string
			for _, a := range arr {
				if m, ok := a.(map[string]any); ok {
					if n, ok := m["name"].(string); ok {
						vals = append(vals, n)
					}
				}
			}
			row.ArrayValue = vals
			return row, true
		}
	case "number":
		if n, ok := prop["number"].(float64); ok {
			row.NumberValue = &n
			return row, true
		}
	case "checkbox":
		if b, ok := prop["checkbox"].(bool); ok {
			row.BooleanValue = &b
			return row, true
		}
	case "date":
		if d, ok := prop["date"].(map[string]any); ok {
			if start, ok := d["start"].(string); ok {
				if t, err := time.Parse(time.RFC3339, start); err == nil {
					row.DatetimeValue = &t
					return row, true
				}
				if t, err := time.Parse("2006-01-02", start); err == nil {
					row.DateValue = &t
					return row, true
				}
			}
		}
	case "url", "email", "phone_number":
		if s, ok := prop[typ].(string); ok {
			row.TextValue = &s
			return row, true
		}
	}
	return store.DocumentMetadata{}, false
}

func plainTextOf(v any) (string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return "", false
	}
	s := ""
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if pt, ok := m["plain_text"].(string); ok {
			s += pt
		}
	}
	return s, s != ""
}
