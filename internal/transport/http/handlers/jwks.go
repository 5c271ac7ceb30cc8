package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/infra/security"
)

// JWKSHandler exposes the RS256 public keys so resource servers can verify
// access tokens without calling back into this service.
type JWKSHandler struct {
	manager *security.JWTManager
}

func NewJWKSHandler(manager *security.JWTManager) *JWKSHandler {
	return &JWKSHandler{manager: manager}
}

// Keys renders the key set. Keys rotate rarely, so clients may cache for an hour.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.manager == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "signing keys unavailable"))
		return
	}

	body, err := h.manager.JWKS()
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to render key set"))
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/json", body)
}
