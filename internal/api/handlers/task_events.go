package handlers

import (
	"errors"
	"net/http"

	"task-tracker/internal/websocket"
	"task-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// TaskEventSink applies task lifecycle events to the realtime layer.
type TaskEventSink interface {
	ApplyTaskEvent(ev websocket.TaskEvent) error
}

type TaskEventHandler struct {
	sink TaskEventSink
}

func NewTaskEventHandler(sink TaskEventSink) *TaskEventHandler {
	return &TaskEventHandler{sink: sink}
}

// PostEvent godoc
// @Summary Signal a task change
// @Description Internal: the task API reports a delete, update, share or unshare it has already authorized, so connected clients are told. Requires the X-Internal-Token header.
// @Tags internal
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body websocket.TaskEvent true "Task event"
// @Success 202 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /internal/tasks/{id}/events [post]
func (h *TaskEventHandler) PostEvent(c *gin.Context) {
	var ev websocket.TaskEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ev.TaskID = c.Param("id")

	if err := h.sink.ApplyTaskEvent(ev); err != nil {
		if errors.Is(err, websocket.ErrInvalidTaskEvent) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c)
		return
	}
	response.SuccessResponse(c, http.StatusAccepted, gin.H{"taskId": ev.TaskID, "type": ev.Type})
}
