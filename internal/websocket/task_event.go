package websocket

import (
	"errors"
	"fmt"
)

var ErrInvalidTaskEvent = errors.New("invalid task event")

// TaskEventType names a change published by the task API.
type TaskEventType string

const (
	TaskEventUpdated  TaskEventType = "task.updated"
	TaskEventShared   TaskEventType = "task.shared"
	TaskEventUnshared TaskEventType = "task.unshared"
	TaskEventDeleted  TaskEventType = "task.deleted"
)

func (t TaskEventType) IsValid() bool {
	switch t {
	case TaskEventUpdated, TaskEventShared, TaskEventUnshared, TaskEventDeleted:
		return true
	default:
		return false
	}
}

// TaskEvent is a server-side signal that a task changed. Events are trusted:
// the publisher has already authorized the change.
type TaskEvent struct {
	Type    TaskEventType `json:"type"`
	TaskID  string        `json:"taskId"`
	ActorID string        `json:"actorId,omitempty"`
	Payload TaskUpdates   `json:"payload,omitempty"`
}

func (e TaskEvent) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTaskEvent, e.Type)
	}
	if e.TaskID == "" {
		return fmt.Errorf("%w: missing taskId", ErrInvalidTaskEvent)
	}
	return nil
}

// NormalizedPayload copies the payload and makes sure it carries the task id.
func (e TaskEvent) NormalizedPayload() TaskUpdates {
	out := make(TaskUpdates, len(e.Payload)+1)
	for k, v := range e.Payload {
		out[k] = v
	}
	if out.ID() == "" {
		out["id"] = e.TaskID
	}
	return out
}
