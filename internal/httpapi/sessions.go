package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// createSession handles POST /api/chat-sessions.
func (h *handlers) createSession(c *gin.Context) {
	s, err := h.d.Session.CreateSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, s)
}

// getSession handles GET /api/chat-sessions/:id.
func (h *handlers) getSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	s, err := h.d.Store.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// concludeSession handles POST /api/chat-sessions/:id/conclude.
func (h *handlers) concludeSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if err := h.d.Session.ConcludeSession(c.Request.Context(), id, "manual"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to conclude session"})
		return
	}
	s, err := h.d.Store.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}
