package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/establishment-api/internal/handler"
	apperrors "github.com/jwalitptl/establishment-api/pkg/errors"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

// ErrorHandler logs errors attached with c.Error and, when the handler has
// not written a response yet, renders the last one in the standard envelope.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		reqLog := log.WithContext(c.Request.Context())
		for _, e := range c.Errors {
			reqLog.Error(e.Err, "Request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP())
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		c.JSON(apperrors.HTTPStatus(lastErr), handler.NewErrorResponse(handler.ErrorMessage(lastErr)))
	}
}
