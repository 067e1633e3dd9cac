package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyang0507/notion-rag-core/internal/observability"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

type searchRequest struct {
	Query   string            `json:"query" binding:"required"`
	Limit   int               `json:"limit"`
	Filters searchFiltersWire `json:"filters"`
}

type searchFiltersWire struct {
	DatabaseIDs  []string `json:"database_ids"`
	ContentTypes []string `json:"content_types"`
	DateFrom     *string  `json:"date_from"`
	DateTo       *string  `json:"date_to"`
}

func (w searchFiltersWire) toStore() store.SearchFilters {
	types := make([]store.ContentType, len(w.ContentTypes))
	for i, t := range w.ContentTypes {
		types[i] = store.ContentType(t)
	}
	return store.SearchFilters{
		DatabaseIDs:  w.DatabaseIDs,
		ContentTypes: types,
		DateFrom:     w.DateFrom,
		DateTo:       w.DateTo,
	}
}

// search handles POST /search: {query, limit, filters} => {results, query, total}.
func (h *handlers) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.d.Retrieve.Search(c.Request.Context(), req.Query, req.Filters.toStore(), req.Limit)
	if err != nil {
		if errors.Is(err, ragerrors.NoResults) {
			c.JSON(http.StatusOK, gin.H{"results": []any{}, "query": req.Query, "total": 0})
			return
		}
		observability.LoggerWithTrace(c.Request.Context()).Warn().Err(err).Msg("search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "query": req.Query, "total": len(results)})
}
