package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"task-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts hits on a key inside a sliding window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
	}
}

// RateLimit limits per authenticated user and endpoint, falling back to the
// client IP. Limiter failures let the request through.
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limiter == nil {
			c.Next()
			return
		}

		subject, ok := UserID(c)
		if !ok {
			subject = "ip:" + c.ClientIP()
		}
		key := fmt.Sprintf("rate_limit:%s:%s", subject, c.FullPath())

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			slog.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}
		if !allowed {
			response.ErrorResponse(c, http.StatusTooManyRequests, response.ErrCodeRateLimited,
				fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window))
			return
		}

		c.Next()
	}
}
