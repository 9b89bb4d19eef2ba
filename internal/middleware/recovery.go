package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/card-notifier/internal/handler"
	"github.com/jwalitptl/card-notifier/pkg/logger"
)

// Recovery turns a handler panic into a 500 response and an error log with the stack.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error(fmt.Errorf("panic: %v", rec), "Request panic recovered",
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(ContextRequestID),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, handler.NewErrorResponse("Internal server error"))
			}
		}()
		c.Next()
	}
}
