package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger writes one access line per request in the same key=value register
// as the audit log. The path is captured up front because the mail-server
// proxy rewrites it on the way out.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		log.Printf("HTTP method=%s path=%s status=%d latency=%v ip=%s request_id=%s",
			method,
			path,
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
			c.GetString("request_id"),
		)
	}
}
