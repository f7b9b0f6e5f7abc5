package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Health answers liveness. Backing services that fail to ping are listed
// under "degraded"; the process itself is still up so the status stays 200.
func Health(deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		degraded := gin.H{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(c.Request.Context()); err != nil {
				degraded[name] = err.Error()
			}
		}
		if len(degraded) > 0 {
			status["status"] = "degraded"
			status["degraded"] = degraded
		}
		c.JSON(http.StatusOK, status)
	}
}
