package websocket

import (
	"context"
	"log/slog"
	"time"

	"task-tracker/internal/models"
)

// TaskAccessStore loads the ownership projection of a task. A missing task
// is reported as (nil, nil).
type TaskAccessStore interface {
	FindTaskAccessFields(ctx context.Context, taskID string) (*models.TaskAccess, error)
}

// AuditEvent records a denied room action.
type AuditEvent struct {
	UserID       string    `json:"userId"`
	Action       string    `json:"action"`
	ResourceID   string    `json:"resourceId"`
	ResourceType RoomType  `json:"resourceType"`
	At           time.Time `json:"at"`
}

// AuditSink receives denied actions in addition to the security log line.
type AuditSink interface {
	PublishAudit(ctx context.Context, event AuditEvent) error
}

// AccessGate decides whether a user may act on a room.
type AccessGate struct {
	tasks TaskAccessStore
	audit AuditSink
}

// NewAccessGate builds a gate over the task store. audit may be nil.
func NewAccessGate(tasks TaskAccessStore, audit AuditSink) *AccessGate {
	return &AccessGate{tasks: tasks, audit: audit}
}

// CheckRoomAccess reports whether userID holds role on the room. Lookup
// failures deny.
func (g *AccessGate) CheckRoomAccess(ctx context.Context, userID, roomID string, roomType RoomType, role Role) bool {
	switch roomType {
	case RoomTask:
		access, ok := g.lookupTask(ctx, userID, roomID)
		if !ok {
			return false
		}
		switch role {
		case RoleOwner:
			return access.IsOwner(userID)
		case RoleShared:
			return access.CanView(userID)
		default:
			return false
		}
	case RoomNotification:
		// personal channel only
		return roomID == userID
	default:
		return false
	}
}

// CheckTaskUpdate allows owners any update and shared users a status-only
// change. It costs a single store lookup.
func (g *AccessGate) CheckTaskUpdate(ctx context.Context, userID, taskID string, updates TaskUpdates) bool {
	access, ok := g.lookupTask(ctx, userID, taskID)
	if !ok {
		return false
	}
	if access.IsOwner(userID) {
		return true
	}
	return updates.IsStatusOnly() && access.CanView(userID)
}

func (g *AccessGate) lookupTask(ctx context.Context, userID, taskID string) (access *models.TaskAccess, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic verifying task access", "userID", userID, "taskID", taskID, "panic", r)
			access, ok = nil, false
		}
	}()

	if g.tasks == nil || taskID == "" {
		return nil, false
	}
	access, err := g.tasks.FindTaskAccessFields(ctx, taskID)
	if err != nil {
		slog.Error("Error verifying task access", "userID", userID, "taskID", taskID, "error", err)
		return nil, false
	}
	if access == nil {
		return nil, false
	}
	return access, true
}

// LogUnauthorizedAccess writes the security audit line and forwards it to
// the audit sink. It never fails.
func (g *AccessGate) LogUnauthorizedAccess(ctx context.Context, userID, action, resourceID string, resourceType RoomType) {
	event := AuditEvent{
		UserID:       userID,
		Action:       action,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		At:           time.Now().UTC(),
	}

	slog.Warn("SECURITY: unauthorized access attempt",
		slog.Group("audit",
			"userID", userID,
			"action", action,
			"resourceID", resourceID,
			"resourceType", resourceType,
		),
	)

	if g.audit == nil {
		return
	}
	if err := g.audit.PublishAudit(ctx, event); err != nil {
		slog.Error("Failed to publish audit event", "userID", userID, "action", action, "error", err)
	}
}
