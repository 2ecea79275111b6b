package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Alfahan/sso-sub000/internal/usecase"
)

const (
	apiKeyHeader     = "X-API-Key"
	apiKeyContextKey = "api_key_id"
)

// RequireAPIKey resolves the calling client from the X-API-Key header and
// stores its id in the request context. Unknown or inactive keys abort 401.
func RequireAPIKey(login *usecase.LoginService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(apiKeyHeader))

		apiKey, err := login.ResolveAPIKey(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client key invalid"})
			return
		}

		c.Set(apiKeyContextKey, apiKey.ID)
		c.Next()
	}
}

// APIKeyID returns the client id resolved by RequireAPIKey, if any.
func APIKeyID(c *gin.Context) string {
	value, _ := c.Get(apiKeyContextKey)
	id, _ := value.(string)
	return id
}
