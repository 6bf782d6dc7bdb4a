package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/establishment-api/internal/handler"
)

const (
	DefaultMaxBodySize   int64 = 1 << 20  // 1MB
	DefaultMaxUploadSize int64 = 10 << 20 // 10MB, establishment imports
)

// SizeLimit rejects bodies larger than maxBytes and caps the reader for
// requests that do not announce their length.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				handler.NewErrorResponse(fmt.Sprintf("request body exceeds %d bytes", maxBytes)))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
