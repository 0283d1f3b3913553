package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// OriginFilter answers CORS preflights and rejects browser requests from
// origins outside allowedOrigins. A "*" entry allows every origin.
func OriginFilter(allowedOrigins []string) gin.HandlerFunc {
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", APIKeyHeader},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	})

	return func(ctx *gin.Context) {
		r := ctx.Request
		if r.Header.Get("Origin") != "" && !c.OriginAllowed(r) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "origin_not_allowed",
				"message": "Origin not allowed",
			})
			return
		}

		c.HandlerFunc(ctx.Writer, r)

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
