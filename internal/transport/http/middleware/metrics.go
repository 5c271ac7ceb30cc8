package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jash90/accounting-platform-sub001/internal/infra/telemetry"
)

// Metrics counts requests per route and status.
func Metrics(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if m == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
