// Package httpapi exposes the ingestion/retrieval core over HTTP, built on
// gin-gonic/gin (the router used across the pack's sibling services).
// Handlers are thin translations to the core packages' Go APIs; no
// business logic lives here.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fyang0507/notion-rag-core/internal/ingest"
	"github.com/fyang0507/notion-rag-core/internal/llm"
	"github.com/fyang0507/notion-rag-core/internal/retrieve"
	"github.com/fyang0507/notion-rag-core/internal/session"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

// Deps are the core package dependencies every handler needs.
type Deps struct {
	Retrieve *retrieve.Pipeline
	Ingest   *ingest.Pipeline
	Session  *session.Manager
	Chat     llm.ChatProvider
	Store    store.Store
	Log      zerolog.Logger
}

// NewRouter wires the spec.md §6 HTTP surface.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("ragserver"))

	h := &handlers{d: d}

	r.POST("/search", h.search)
	r.POST("/chat", h.chat)
	r.POST("/notion/webhook", h.webhook)

	sessions := r.Group("/api/chat-sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.getSession)
		sessions.POST("/:id/conclude", h.concludeSession)
	}

	return r
}

type handlers struct {
	d *Deps
}
