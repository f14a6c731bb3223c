package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader carries the shared secret for maintenance endpoints.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey пропускает только запросы с верным X-Admin-Key
func RequireAdminKey(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		provided := c.GetHeader(AdminKeyHeader)
		if len(expected) == 0 || provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			log.Printf("[AdminKey] Rejected %s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "UNAUTHORIZED",
				"message": "Missing or invalid admin key",
			})
			return
		}
		c.Next()
	}
}
