package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout returns a Gin middleware that attaches a deadline to the request
// context. The handler chain runs synchronously, so gin.Context is only
// touched from one goroutine.
//
// Cache and storage queries take the request context and give up when the
// deadline fires. Provider calls do not: routing.UpstreamContext bounds them
// by the provider timeout alone. If the deadline fired and nothing was
// written, a 503 is sent.
//
// A handler that blocks without watching its context cannot be interrupted.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() != nil && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "request timed out",
			})
		}
	}
}
