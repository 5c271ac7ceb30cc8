package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/usecase"
)

// Context keys populated by RequireAuth.
const (
	IdentityIDKey = "identity_id"
	SessionIDKey  = "session_id"
	RolesKey      = "roles"
	ClaimsKey     = "claims"
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:     errorMsg,
		RequestID: requestIDFromContext(c.Request.Context()),
	}
}

// RequireAuth validates the Authorization header, statelessly verifies the
// access token, and loads the principal into the request context.
func RequireAuth(tokens *usecase.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		claims, err := tokens.VerifyAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			}
			return
		}

		c.Set(IdentityIDKey, claims.IdentityID)
		c.Set(SessionIDKey, claims.SessionID)
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// RequireRole admits only principals holding at least one of the roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		held, exists := c.Get(RolesKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient privileges"))
			return
		}

		heldRoles, _ := held.([]string)
		for _, required := range roles {
			for _, role := range heldRoles {
				if role == required {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient privileges"))
	}
}

// IdentityID extracts the authenticated principal from the context.
func IdentityID(c *gin.Context) string {
	value, _ := c.Get(IdentityIDKey)
	id, _ := value.(string)
	return id
}

// SessionID extracts the authenticated session from the context.
func SessionID(c *gin.Context) string {
	value, _ := c.Get(SessionIDKey)
	id, _ := value.(string)
	return id
}
