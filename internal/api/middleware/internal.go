package middleware

import (
	"crypto/subtle"
	"log/slog"

	"task-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// InternalTokenHeader carries the shared secret of service-to-service calls.
const InternalTokenHeader = "X-Internal-Token"

// RequireServiceToken admits only callers presenting the configured shared
// secret. User session tokens are not accepted here. An empty secret closes
// the group.
func RequireServiceToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(InternalTokenHeader)
		if secret == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			slog.Warn("SECURITY: rejected internal API call",
				slog.Group("audit",
					"path", c.FullPath(),
					"clientIP", c.ClientIP(),
				),
			)
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}
