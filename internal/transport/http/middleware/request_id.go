package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Alfahan/sso-sub000/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID honours an inbound X-Request-ID or mints one, echoes it on the
// response, and plants it in the request context for downstream log lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID),
		)

		c.Next()
	}
}
