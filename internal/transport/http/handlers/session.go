package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/transport/http/middleware"
	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// SessionHandler exposes device-management endpoints over active sessions.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session endpoints under the authenticated group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/sessions", h.List)
	r.DELETE("/sessions/:id", h.Revoke)
}

// List returns the principal's active sessions.
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context(), middleware.IdentityID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "list sessions failed"))
		return
	}

	currentID := middleware.SessionID(c)
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, newSessionSummary(session, currentID))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

// Revoke invalidates one of the principal's sessions.
func (h *SessionHandler) Revoke(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.sessions.Validate(c.Request.Context(), sessionID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
			{Err: usecase.ErrSessionRevoked, Status: http.StatusNotFound, Message: "session not found"},
			{Err: usecase.ErrSessionExpired, Status: http.StatusNotFound, Message: "session not found"},
		}, http.StatusInternalServerError, "revoke session failed")
		return
	}

	// Sessions belong to their identity; nobody revokes someone else's.
	if session.IdentityID != middleware.IdentityID(c) {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "session not found"))
		return
	}

	if err := h.sessions.Revoke(c.Request.Context(), sessionID, "user_revoked"); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "revoke session failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session revoked"})
}
