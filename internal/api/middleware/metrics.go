package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/did-node/internal/metrics"
)

// Metrics 记录请求计数与耗时，path 使用路由模板避免标签爆炸
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTP(c.Request.Method, path, metrics.StatusLabel(c.Writer.Status()), time.Since(start))
	}
}
