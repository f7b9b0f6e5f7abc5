package middleware

import (
	"log/slog"
	"strings"

	"task-tracker/internal/websocket"
	"task-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

type AuthMiddleware struct {
	verifier   websocket.TokenVerifier
	cookieName string
}

func NewAuthMiddleware(verifier websocket.TokenVerifier, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:   verifier,
		cookieName: cookieName,
	}
}

// RequireAuth accepts a Bearer token or the session cookie and stores the
// user id on the context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && am.cookieName != "" {
			token, _ = c.Cookie(am.cookieName)
		}
		if token == "" {
			response.Unauthorized(c)
			return
		}

		userID, err := am.verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			slog.Debug("Rejected API token", "path", c.FullPath(), "error", err)
			response.Unauthorized(c)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// UserID returns the authenticated user id set by RequireAuth.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(userIDKey)
	return id, id != ""
}
