package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/stock-engine/pkg/metrics"
)

// Metrics counts requests by route pattern. Scrapes are not counted, and paths
// without a route share the "unmatched" label to bound cardinality.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		switch route {
		case "/metrics":
			return
		case "":
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
