package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType     = errors.New("unknown envelope type")
	ErrMissingRoom     = errors.New("missing roomId or roomType")
	ErrMissingUpdates  = errors.New("missing updateType or updates.id")
	ErrUnknownUpdate   = errors.New("unknown update type")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// EnvelopeType is the closed set of wire message types.
type EnvelopeType string

const (
	// Inbound
	TypeJoinRoom   EnvelopeType = "JOIN_ROOM"
	TypeLeaveRoom  EnvelopeType = "LEAVE_ROOM"
	TypeUpdateRoom EnvelopeType = "UPDATE_ROOM"

	// Outbound
	TypeTaskUpdate       EnvelopeType = "TASK_UPDATE"
	TypeShareTask        EnvelopeType = "SHARE_TASK"
	TypeUnshareTask      EnvelopeType = "UNSHARE_TASK"
	TypeDeleteTask       EnvelopeType = "DELETE_TASK"
	TypeNotification     EnvelopeType = "NOTIFICATION"
	TypeNotificationRead EnvelopeType = "NOTIFICATION_READ"
)

func (t EnvelopeType) String() string {
	return string(t)
}

// IsInbound reports whether clients may send this type.
func (t EnvelopeType) IsInbound() bool {
	switch t {
	case TypeJoinRoom, TypeLeaveRoom, TypeUpdateRoom:
		return true
	default:
		return false
	}
}

// IsOutbound reports whether the server emits this type.
func (t EnvelopeType) IsOutbound() bool {
	switch t {
	case TypeTaskUpdate, TypeShareTask, TypeUnshareTask, TypeDeleteTask,
		TypeNotification, TypeNotificationRead:
		return true
	default:
		return false
	}
}

// RoomType distinguishes task rooms from personal notification rooms.
type RoomType string

const (
	RoomTask         RoomType = "TASK"
	RoomNotification RoomType = "NOTIFICATION"
)

// Role is the permission tier required for a room action.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleShared Role = "shared"
)

// UpdateType is the nested kind of an UPDATE_ROOM envelope.
type UpdateType string

const (
	UpdateTask    UpdateType = "TASK_UPDATE"
	UpdateShare   UpdateType = "SHARE_TASK"
	UpdateUnshare UpdateType = "UNSHARE_TASK"
)

// Outbound returns the envelope type broadcast for this update.
func (u UpdateType) Outbound() (EnvelopeType, error) {
	switch u {
	case UpdateTask:
		return TypeTaskUpdate, nil
	case UpdateShare:
		return TypeShareTask, nil
	case UpdateUnshare:
		return TypeUnshareTask, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUpdate, u)
	}
}

// Envelope is the {type, payload} message exchanged in both directions.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope encodes payload into an envelope of the given type.
func NewEnvelope(t EnvelopeType, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return &Envelope{Type: t, Payload: raw}, nil
}

// ParseEnvelope decodes a raw frame. Only the outer shape is checked here.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if !env.Type.IsInbound() {
		return &env, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return &env, nil
}

// RoomPayload is the body of JOIN_ROOM and LEAVE_ROOM.
type RoomPayload struct {
	RoomID   string   `json:"roomId"`
	RoomType RoomType `json:"roomType"`
}

func (e *Envelope) RoomPayload() (*RoomPayload, error) {
	var p RoomPayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingRoom, err)
		}
	}
	if p.RoomID == "" || p.RoomType == "" {
		return nil, ErrMissingRoom
	}
	return &p, nil
}

// UpdatePayload is the body of UPDATE_ROOM.
type UpdatePayload struct {
	UpdateType UpdateType  `json:"updateType"`
	Updates    TaskUpdates `json:"updates"`
	RoomID     string      `json:"roomId,omitempty"`
}

func (e *Envelope) UpdatePayload() (*UpdatePayload, error) {
	var p UpdatePayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingUpdates, err)
		}
	}
	if p.UpdateType == "" || p.Updates.ID() == "" {
		return nil, ErrMissingUpdates
	}
	if _, err := p.UpdateType.Outbound(); err != nil {
		return nil, err
	}
	return &p, nil
}

// TaskUpdates is the free-form task change carried by UPDATE_ROOM and
// task events. It always identifies the task by "id" ("_id" is accepted).
type TaskUpdates map[string]interface{}

// ID returns the task id the updates refer to.
func (u TaskUpdates) ID() string {
	for _, key := range []string{"id", "_id"} {
		if s, ok := u[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// statusOnlyKeys are the fields a shared (non-owner) user may send.
var statusOnlyKeys = map[string]struct{}{
	"id":        {},
	"_id":       {},
	"status":    {},
	"updatedAt": {},
}

// IsStatusOnly reports whether the updates change the status field and
// nothing else.
func (u TaskUpdates) IsStatusOnly() bool {
	if _, ok := u["status"]; !ok {
		return false
	}
	for key := range u {
		if _, ok := statusOnlyKeys[key]; !ok {
			return false
		}
	}
	return true
}

// UserIDs collects string ids from the first present list field.
func (u TaskUpdates) UserIDs(keys ...string) []string {
	for _, key := range keys {
		raw, ok := u[key]
		if !ok {
			continue
		}
		var ids []string
		switch list := raw.(type) {
		case []string:
			ids = append(ids, list...)
		case []interface{}:
			for _, item := range list {
				switch v := item.(type) {
				case string:
					ids = append(ids, v)
				case map[string]interface{}:
					// populated user documents
					if id := TaskUpdates(v).ID(); id != "" {
						ids = append(ids, id)
					}
				}
			}
		}
		return ids
	}
	return nil
}
