package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// maxRequestIDLength caps what we accept from clients so a hostile header
// cannot bloat every log line.
const maxRequestIDLength = 128

// RequestID propagates an incoming X-Request-ID or mints a fresh one, storing
// it on the request context and echoing it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, id)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logger.RequestIDKey{}, id),
		)

		c.Next()
	}
}

// RequestIDFrom reads the correlation identifier stored by RequestID.
func RequestIDFrom(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return ""
	}
	return requestIDFromContext(c.Request.Context())
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(logger.RequestIDKey{}).(string)
	return id
}
