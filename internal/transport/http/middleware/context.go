package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader = "X-Trace-ID"
	traceIDKey    = "trace_id"
)

// EnrichContext propagates the caller's trace id, or mints one, so every log
// line and error payload for a request can be correlated.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(traceIDKey, traceID)
		c.Header(traceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID retrieves the trace id stored by EnrichContext.
func GetTraceID(c *gin.Context) string {
	value, _ := c.Get(traceIDKey)
	id, _ := value.(string)
	return id
}
