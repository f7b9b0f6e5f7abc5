package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"task-tracker/internal/api/middleware"
	"task-tracker/internal/models"
	"task-tracker/internal/services"
	"task-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationService is what the handler needs from the service layer.
type NotificationService interface {
	Create(ctx context.Context, req *models.CreateNotificationRequest) (*models.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]models.Notification, error)
	ListAll(ctx context.Context, userID string) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID string) (*models.Notification, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// GetUnread godoc
// @Summary List unread notifications
// @Tags notifications
// @Produce json
// @Success 200 {object} response.Response
// @Router /notifications/unread [get]
func (h *NotificationHandler) GetUnread(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	list, err := h.service.ListUnread(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Failed to list unread notifications", "userID", userID, "error", err)
		response.InternalError(c)
		return
	}
	response.SuccessResponse(c, http.StatusOK, nonNil(list))
}

// GetAll godoc
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Success 200 {object} response.Response
// @Router /notifications [get]
func (h *NotificationHandler) GetAll(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	list, err := h.service.ListAll(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Failed to list notifications", "userID", userID, "error", err)
		response.InternalError(c)
		return
	}
	response.SuccessResponse(c, http.StatusOK, nonNil(list))
}

// MarkAsRead godoc
// @Summary Mark a notification as read
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	n, err := h.service.MarkAsRead(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleError(c, userID, err)
		return
	}
	response.SuccessResponse(c, http.StatusOK, n)
}

// MarkAllAsRead godoc
// @Summary Mark every notification as read
// @Tags notifications
// @Produce json
// @Success 200 {object} response.Response
// @Router /notifications/read-all [patch]
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	count, err := h.service.MarkAllAsRead(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, userID, err)
		return
	}
	response.SuccessResponse(c, http.StatusOK, gin.H{"updated": count})
}

// Delete godoc
// @Summary Delete a notification
// @Tags notifications
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.handleError(c, userID, err)
		return
	}
	response.SuccessResponse(c, http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// Create godoc
// @Summary Create a notification for a user
// @Description Internal: called by the task API when something happens to a user's tasks. Requires the X-Internal-Token header.
// @Tags internal
// @Accept json
// @Produce json
// @Param request body models.CreateNotificationRequest true "Notification"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /internal/notifications [post]
func (h *NotificationHandler) Create(c *gin.Context) {
	var req models.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	n, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, req.UserID, err)
		return
	}
	response.SuccessResponse(c, http.StatusCreated, n)
}

func (h *NotificationHandler) handleError(c *gin.Context, userID string, err error) {
	switch {
	case errors.Is(err, services.ErrNotificationNotFound):
		response.NotFound(c, "Notification not found")
	case errors.Is(err, services.ErrInvalidNotification):
		response.BadRequest(c, err.Error())
	default:
		slog.Error("Notification request failed", "userID", userID, "path", c.FullPath(), "error", err)
		response.InternalError(c)
	}
}

func nonNil(list []models.Notification) []models.Notification {
	if list == nil {
		return []models.Notification{}
	}
	return list
}
