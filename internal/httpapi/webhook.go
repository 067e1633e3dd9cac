package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyang0507/notion-rag-core/internal/observability"
)

type webhookRequest struct {
	Object    string `json:"object"`
	EventType string `json:"event_type" binding:"required"`
	Data      struct {
		ID string `json:"id"`
	} `json:"data"`
}

// webhook handles POST /notion/webhook: page.created|updated trigger a
// reingest, page.deleted removes the document and its chunks/metadata,
// per spec.md §4.E/§6.
func (h *handlers) webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Data.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data.id is required"})
		return
	}

	var err error
	switch req.EventType {
	case "page.created", "page.updated":
		err = h.d.Ingest.ReingestPage(c.Request.Context(), req.Data.ID)
	case "page.deleted":
		err = h.d.Ingest.DeletePage(c.Request.Context(), req.Data.ID)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		observability.LoggerWithTrace(c.Request.Context()).Warn().Err(err).Str("event_type", req.EventType).Str("page_id", req.Data.ID).Msg("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
