package handlers

import (
	"net/http"

	"task-tracker/internal/websocket"
	"task-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub        *websocket.Hub
	handshaker *websocket.Handshaker
}

func NewWSHandler(hub *websocket.Hub, handshaker *websocket.Handshaker) *WSHandler {
	return &WSHandler{hub: hub, handshaker: handshaker}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Upgrade to the realtime task channel. Requires an allowed Origin and the session cookie.
// @Tags websocket
// @Success 101 "Switching Protocols"
// @Failure 401 {string} string "Unauthorized"
// @Failure 403 {string} string "Forbidden"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWS(h.hub, h.handshaker, c.Writer, c.Request)
}

// GetStats godoc
// @Summary Realtime connection stats
// @Description Internal: lists every connection and room member. Requires the X-Internal-Token header.
// @Tags internal
// @Produce json
// @Success 200 {object} response.Response
// @Router /internal/ws/stats [get]
func (h *WSHandler) GetStats(c *gin.Context) {
	response.SuccessResponse(c, http.StatusOK, h.hub.Stats())
}
