package httpmiddleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/metrics"
)

// Metrics records request latency labelled by the matched route template, so
// path parameters do not explode the label space.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
