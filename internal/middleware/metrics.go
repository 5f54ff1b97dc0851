package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medicore/hms-api/internal/service"
)

// Metrics records per-request duration and count, labelled by route
// template rather than raw path to keep cardinality bounded.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(started))
	}
}
