package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	APIKeyHeader = "X-API-Key"
	APIKeyQuery  = "apiKey"
)

// APIKey rejects requests that do not present key, either in the X-API-Key
// header or, for WebSocket clients that cannot set headers, the apiKey query
// parameter. An empty key disables the check.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		if matches(c.GetHeader(APIKeyHeader), key) || matches(c.Query(APIKeyQuery), key) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_api_key",
			"message": "Invalid API key",
		})
	}
}

func matches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
