package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fyang0507/notion-rag-core/internal/llm"
	"github.com/fyang0507/notion-rag-core/internal/observability"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
	"github.com/fyang0507/notion-rag-core/internal/retrieve"
	"github.com/fyang0507/notion-rag-core/internal/session"
	"github.com/fyang0507/notion-rag-core/internal/store"
)

const defaultSearchLimit = 5

type chatMessageWire struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages  []chatMessageWire `json:"messages" binding:"required"`
	SessionID string            `json:"session_id"`
	Stream    bool              `json:"stream"`
	Filters   searchFiltersWire `json:"filters"`
}

// chat handles POST /chat: {messages, session_id?, stream, filters}.
// Streaming responses are Server-Sent-Events lines `data: {"content":...}\n\n`
// terminated by a citations event and a `data: [DONE]\n\n` sentinel, per
// spec.md §6.
func (h *handlers) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages must not be empty"})
		return
	}
	userQuery := req.Messages[len(req.Messages)-1].Content

	sess, err := h.resolveSession(c, req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session resolution failed"})
		return
	}

	if _, err := h.d.Session.AppendMessage(c.Request.Context(), sess.ID, store.ChatMessage{
		Role: store.RoleUser, Content: userQuery,
	}); err != nil {
		observability.LoggerWithTrace(c.Request.Context()).Warn().Err(err).Msg("failed to persist user message")
	}

	results, err := h.d.Retrieve.Search(c.Request.Context(), userQuery, req.Filters.toStore(), defaultSearchLimit)
	if err != nil {
		if errors.Is(err, ragerrors.NoResults) {
			h.streamNoResults(c, sess.ID, userQuery)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retrieval failed"})
		return
	}

	completionReq := buildCompletionRequest(req.Messages, results)

	if !req.Stream {
		resp, err := h.d.Chat.Complete(c.Request.Context(), completionReq)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "completion failed"})
			return
		}
		h.persistAssistantMessage(c, sess.ID, resp.Content, results)
		c.JSON(http.StatusOK, gin.H{"content": resp.Content, "citations": citationsOf(results)})
		return
	}

	h.streamCompletion(c, sess.ID, completionReq, results)
}

func (h *handlers) resolveSession(c *gin.Context, sessionID string) (store.ChatSession, error) {
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err == nil {
			if s, err := h.d.Store.GetSession(c.Request.Context(), id); err == nil {
				return s, nil
			}
		}
	}
	return h.d.Session.CreateSession(c.Request.Context())
}

// streamNoResults implements spec.md §7's NoResults short-circuit: a
// localized apology, language sniffed from the query, with no LLM call.
func (h *handlers) streamNoResults(c *gin.Context, sessionID uuid.UUID, query string) {
	msg := "Sorry, I couldn't find anything relevant in the knowledge base for that."
	if session.IsCJKQuery(query) {
		msg = "抱歉,没有在知识库中找到相关内容。"
	}
	h.persistAssistantMessage(c, sessionID, msg, nil)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	writeSSEContent(c, msg)
	writeSSECitations(c, nil)
	writeSSEDone(c)
}

func (h *handlers) streamCompletion(c *gin.Context, sessionID uuid.UUID, req llm.CompletionRequest, results []retrieve.RetrievedChunk) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	deltas, errFn := h.d.Chat.Stream(c.Request.Context(), req)
	var full strings.Builder
	c.Stream(func(w io.Writer) bool {
		delta, ok := <-deltas
		if !ok {
			return false
		}
		full.WriteString(delta.Content)
		writeSSEContent(c, delta.Content)
		return !delta.Done
	})

	if err := errFn(); err != nil {
		observability.LoggerWithTrace(c.Request.Context()).Warn().Err(err).Msg("stream completion failed")
	}

	writeSSECitations(c, results)
	writeSSEDone(c)
	h.persistAssistantMessage(c, sessionID, full.String(), results)
}

func (h *handlers) persistAssistantMessage(c *gin.Context, sessionID uuid.UUID, content string, results []retrieve.RetrievedChunk) {
	if _, err := h.d.Session.AppendMessage(c.Request.Context(), sessionID, store.ChatMessage{
		Role:        store.RoleAssistant,
		Content:     content,
		Citations:   citationsOf(results),
		ContextUsed: map[string]any{"match_count": len(results)},
	}); err != nil {
		observability.LoggerWithTrace(c.Request.Context()).Warn().Err(err).Msg("failed to persist assistant message")
	}
}

func buildCompletionRequest(messages []chatMessageWire, results []retrieve.RetrievedChunk) llm.CompletionRequest {
	var ctxBuilder strings.Builder
	for _, r := range results {
		ctxBuilder.WriteString(r.EnrichedContent)
		ctxBuilder.WriteString("\n\n---\n\n")
	}

	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{
		Role:    "system",
		Content: "Answer using only the following context from the knowledge base:\n\n" + ctxBuilder.String(),
	})
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return llm.CompletionRequest{Messages: out}
}

func citationsOf(results []retrieve.RetrievedChunk) []store.ChunkRef {
	if len(results) == 0 {
		return nil
	}
	refs := make([]store.ChunkRef, 0, len(results))
	for _, r := range results {
		chunkID, err1 := uuid.Parse(r.ChunkID)
		docID, err2 := uuid.Parse(r.DocumentID)
		if err1 != nil || err2 != nil {
			continue
		}
		refs = append(refs, store.ChunkRef{ChunkID: chunkID, DocumentID: docID})
	}
	return refs
}

func writeSSEContent(c *gin.Context, content string) {
	b, _ := json.Marshal(map[string]string{"content": content})
	fmt.Fprintf(c.Writer, "data: %s\n\n", b)
	c.Writer.Flush()
}

func writeSSECitations(c *gin.Context, results []retrieve.RetrievedChunk) {
	b, _ := json.Marshal(map[string]any{"citations": citationsOf(results)})
	fmt.Fprintf(c.Writer, "data: %s\n\n", b)
	c.Writer.Flush()
}

func writeSSEDone(c *gin.Context) {
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}
