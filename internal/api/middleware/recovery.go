package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/entitled/internal/metrics"
)

// Recovery converts a handler panic into the API's generic 500 body.
// Verbose mode adds redacted request headers and the stack to the log entry;
// request bodies are never logged since they may carry credentials or codes.
func Recovery(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			metrics.IncPanic()

			fields := logrus.Fields{
				"method": c.Request.Method,
				"path":   SanitizePath(c.Request.URL.Path),
			}
			if uid, ok := c.Get(UserIDKey); ok {
				fields["user_id"] = uid
			}
			if verbose {
				fields["headers"] = SanitizeHeaders(c.Request.Header)
				fields["stack"] = string(debug.Stack())
			}
			GetRequestLogger(c).WithFields(fields).Errorf("panic recovered: %v", r)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}()
		c.Next()
	}
}
