package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"task-tracker/internal/models"
	"task-tracker/internal/repositories/postgres"
	"task-tracker/internal/websocket"
)

const (
	unreadNotificationLimit = 50
	allNotificationLimit    = 100
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidNotification  = errors.New("invalid notification")
)

// NotificationStore persists notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListUnread(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	ListAll(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID string) (*models.Notification, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

// Notifier pushes a message to a connected user.
type Notifier interface {
	SendToUser(userID string, msgType websocket.EnvelopeType, payload interface{})
}

type NotificationService struct {
	repo     NotificationStore
	notifier Notifier
}

func NewNotificationService(repo NotificationStore, notifier Notifier) *NotificationService {
	return &NotificationService{repo: repo, notifier: notifier}
}

// Create stores a notification and pushes it to the recipient if online.
func (s *NotificationService) Create(ctx context.Context, req *models.CreateNotificationRequest) (*models.Notification, error) {
	if req == nil || req.UserID == "" || req.Message == "" {
		return nil, fmt.Errorf("%w: userId and message are required", ErrInvalidNotification)
	}
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, req.Type)
	}

	n := &models.Notification{
		UserID:  req.UserID,
		Type:    req.Type,
		Message: req.Message,
		Data:    models.JSONMap(req.Data),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	s.push(n.UserID, websocket.TypeNotification, n)
	slog.Info("Notification created", "notificationID", n.ID, "userID", n.UserID, "type", n.Type)
	return n, nil
}

func (s *NotificationService) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.repo.ListUnread(ctx, userID, unreadNotificationLimit)
}

func (s *NotificationService) ListAll(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.repo.ListAll(ctx, userID, allNotificationLimit)
}

// MarkAsRead marks one of the user's notifications read and tells the
// user's other views about it.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID string) (*models.Notification, error) {
	n, err := s.repo.MarkAsRead(ctx, id, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	s.push(userID, websocket.TypeNotificationRead, n)
	return n, nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, id, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

func (s *NotificationService) push(userID string, msgType websocket.EnvelopeType, n *models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendToUser(userID, msgType, n)
}
