package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bellvik/transport-planner/internal/routing"
)

// HeaderRequestID carries the request identifier in both directions.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLen bounds client-supplied identifiers.
const maxRequestIDLen = 64

// RequestID tags each request with an identifier that flows into every
// call-log entry the request produces. A well-formed client-supplied
// X-Request-ID is kept; otherwise a UUID is generated. The identifier is
// echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		c.Request = c.Request.WithContext(routing.WithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
