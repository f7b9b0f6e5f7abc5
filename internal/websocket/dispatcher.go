package websocket

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"
)

// Dispatcher routes parsed envelopes to room operations. Handle runs on the
// hub loop; authorization lookups run off-loop and post their outcome back.
type Dispatcher struct {
	hub         *Hub
	gate        *AccessGate
	authTimeout time.Duration
	deleteGrace time.Duration
}

func newDispatcher(hub *Hub, gate *AccessGate, authTimeout, deleteGrace time.Duration) *Dispatcher {
	return &Dispatcher{
		hub:         hub,
		gate:        gate,
		authTimeout: authTimeout,
		deleteGrace: deleteGrace,
	}
}

func (d *Dispatcher) rooms() *RoomIndex {
	return d.hub.registry.Rooms()
}

// Handle decodes one inbound frame from client and acts on it. Malformed
// frames are logged and dropped; the connection stays open.
func (d *Dispatcher) Handle(client *Client, data []byte) {
	if current, ok := d.hub.registry.GetClient(client.userID); !ok || current != client {
		slog.Debug("Dropping frame from unregistered client", "clientID", client.id, "userID", client.userID)
		return
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			slog.Warn("Unknown message type", "userID", client.userID, "type", env.Type)
		} else {
			slog.Warn("Failed to parse message", "userID", client.userID, "error", err)
		}
		return
	}

	switch env.Type {
	case TypeJoinRoom:
		d.handleJoinRoom(client, env)
	case TypeLeaveRoom:
		d.handleLeaveRoom(client, env)
	case TypeUpdateRoom:
		d.handleUpdateRoom(client, env)
	}
}

func (d *Dispatcher) handleJoinRoom(client *Client, env *Envelope) {
	p, err := env.RoomPayload()
	if err != nil {
		slog.Warn("Invalid JOIN_ROOM payload", "userID", client.userID, "error", err)
		return
	}

	userID := client.userID
	d.authorize(userID, string(TypeJoinRoom), p.RoomID, p.RoomType,
		func(ctx context.Context) bool {
			return d.gate.CheckRoomAccess(ctx, userID, p.RoomID, p.RoomType, RoleShared)
		},
		func() {
			// the connection may have been replaced while the check ran
			if current, ok := d.hub.registry.GetClient(userID); !ok || current != client {
				slog.Debug("Dropping join for replaced connection", "clientID", client.id, "userID", userID, "roomID", p.RoomID)
				return
			}
			if d.rooms().AddToRoom(userID, p.RoomID) {
				slog.Info("User joined room", "userID", userID, "roomID", p.RoomID, "roomType", p.RoomType)
			}
		},
	)
}

func (d *Dispatcher) handleLeaveRoom(client *Client, env *Envelope) {
	p, err := env.RoomPayload()
	if err != nil {
		slog.Warn("Invalid LEAVE_ROOM payload", "userID", client.userID, "error", err)
		return
	}
	d.rooms().RemoveFromRoom(client.userID, p.RoomID)
	slog.Info("User left room", "userID", client.userID, "roomID", p.RoomID)
}

func (d *Dispatcher) handleUpdateRoom(client *Client, env *Envelope) {
	p, err := env.UpdatePayload()
	if err != nil {
		slog.Warn("Invalid UPDATE_ROOM payload", "userID", client.userID, "error", err)
		return
	}

	userID := client.userID
	taskID := p.Updates.ID()
	updates := p.Updates

	var (
		check func(ctx context.Context) bool
		apply func()
	)
	switch p.UpdateType {
	case UpdateTask:
		check = func(ctx context.Context) bool {
			return d.gate.CheckTaskUpdate(ctx, userID, taskID, updates)
		}
		apply = func() { d.broadcast(taskID, TypeTaskUpdate, updates) }
	case UpdateShare:
		check = func(ctx context.Context) bool {
			return d.gate.CheckRoomAccess(ctx, userID, taskID, RoomTask, RoleOwner)
		}
		apply = func() { d.applyShare(userID, taskID, updates) }
	case UpdateUnshare:
		check = func(ctx context.Context) bool {
			return d.gate.CheckRoomAccess(ctx, userID, taskID, RoomTask, RoleOwner)
		}
		apply = func() { d.applyUnshare(userID, taskID, updates) }
	default:
		slog.Warn("Unknown update type", "userID", userID, "updateType", p.UpdateType)
		return
	}

	d.authorize(userID, string(p.UpdateType), taskID, RoomTask, check, apply)
}

// authorize runs check off the loop under the auth timeout. On success apply
// is posted back to the loop; on denial the attempt is audited.
func (d *Dispatcher) authorize(userID, action, resourceID string, resourceType RoomType, check func(ctx context.Context) bool, apply func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Recovered from panic in authorization", "userID", userID, "action", action, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		ctx, cancel := context.WithTimeout(d.hub.ctx, d.authTimeout)
		defer cancel()

		if !check(ctx) {
			d.gate.LogUnauthorizedAccess(context.WithoutCancel(ctx), userID, action, resourceID, resourceType)
			return
		}
		d.hub.enqueue(apply)
	}()
}

func (d *Dispatcher) broadcast(roomID string, msgType EnvelopeType, payload TaskUpdates) int {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		slog.Error("Failed to build broadcast", "roomID", roomID, "type", msgType, "error", err)
		return 0
	}
	return d.rooms().BroadcastToRoom(roomID, env)
}

// applyShare subscribes the sharer and every connected recipient, then tells
// the room.
func (d *Dispatcher) applyShare(actorID, taskID string, updates TaskUpdates) {
	if actorID != "" {
		d.rooms().AddToRoom(actorID, taskID)
	}
	for _, userID := range updates.UserIDs("sharedWith", "friendIds") {
		d.rooms().AddToRoom(userID, taskID)
	}
	d.broadcast(taskID, TypeShareTask, updates)
}

// applyUnshare tells the room first so the removed users still hear it, then
// drops them. Without an explicit list the actor's own membership goes.
func (d *Dispatcher) applyUnshare(actorID, taskID string, updates TaskUpdates) {
	d.broadcast(taskID, TypeUnshareTask, updates)

	removed := updates.UserIDs("friendIds", "unsharedWith")
	if len(removed) == 0 && actorID != "" {
		removed = []string{actorID}
	}
	for _, userID := range removed {
		d.rooms().RemoveFromRoom(userID, taskID)
	}
}

// deleteTask notifies the room and removes it after the grace period.
// Deleting twice is harmless.
func (d *Dispatcher) deleteTask(taskID string, payload TaskUpdates) {
	d.broadcast(taskID, TypeDeleteTask, payload)

	time.AfterFunc(d.deleteGrace, func() {
		d.hub.enqueue(func() { d.rooms().DeleteRoom(taskID) })
	})
}
