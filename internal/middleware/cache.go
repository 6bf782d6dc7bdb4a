package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// NoStore marks responses that carry tokens or per-user state.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

// PublicCache lets shared caches keep GET responses for maxAge seconds.
func PublicCache(maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "GET" && maxAge > 0 {
			c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
			c.Header("Vary", "Accept")
		}
		c.Next()
	}
}
