package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
)

// RoomIndex maps a room id to the users subscribed to it. A room exists
// only while it has members.
type RoomIndex struct {
	members  map[string]map[string]struct{}
	registry *Registry
}

func newRoomIndex(registry *Registry) *RoomIndex {
	return &RoomIndex{
		members:  make(map[string]map[string]struct{}),
		registry: registry,
	}
}

// AddToRoom subscribes a connected user to roomID, creating the room on
// first join. Returns false when the user has no live connection.
func (ri *RoomIndex) AddToRoom(userID, roomID string) bool {
	c, ok := ri.registry.GetClient(userID)
	if !ok {
		return false
	}

	users, ok := ri.members[roomID]
	if !ok {
		users = make(map[string]struct{})
		ri.members[roomID] = users
	}
	users[userID] = struct{}{}
	c.addRoom(roomID)
	return true
}

// RemoveFromRoom unsubscribes userID from roomID and drops the room once it
// is empty.
func (ri *RoomIndex) RemoveFromRoom(userID, roomID string) {
	if c, ok := ri.registry.GetClient(userID); ok {
		c.removeRoom(roomID)
	}

	users, ok := ri.members[roomID]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(ri.members, roomID)
	}
}

// BroadcastToRoom encodes env once and queues it on every member whose
// socket is open. Closed sockets are skipped. Returns the delivery count.
func (ri *RoomIndex) BroadcastToRoom(roomID string, env *Envelope) int {
	users, ok := ri.members[roomID]
	if !ok {
		return 0
	}

	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal broadcast", "roomID", roomID, "type", env.Type, "error", err)
		return 0
	}

	// stable order keeps test output and logs predictable
	ids := make([]string, 0, len(users))
	for userID := range users {
		ids = append(ids, userID)
	}
	sort.Strings(ids)

	delivered := 0
	for _, userID := range ids {
		c, ok := ri.registry.GetClient(userID)
		if !ok || !c.IsOpen() {
			continue
		}
		if err := c.Send(data); err != nil {
			if !errors.Is(err, ErrClientDisconnected) {
				slog.Warn("Failed to queue broadcast", "roomID", roomID, "userID", userID, "error", err)
			}
			continue
		}
		delivered++
	}

	slog.Debug("Broadcast to room", "roomID", roomID, "type", env.Type, "delivered", delivered)
	return delivered
}

// DeleteRoom clears roomID from every member's joined set and removes the
// room. Missing rooms are a no-op.
func (ri *RoomIndex) DeleteRoom(roomID string) {
	users, ok := ri.members[roomID]
	if !ok {
		return
	}
	for userID := range users {
		if c, ok := ri.registry.GetClient(userID); ok {
			c.removeRoom(roomID)
		}
	}
	delete(ri.members, roomID)
	slog.Info("Room deleted", "roomID", roomID, "members", len(users))
}

// GetMembers returns the sorted user ids subscribed to roomID.
func (ri *RoomIndex) GetMembers(roomID string) []string {
	users := ri.members[roomID]
	ids := make([]string, 0, len(users))
	for userID := range users {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

func (ri *RoomIndex) HasRoom(roomID string) bool {
	_, ok := ri.members[roomID]
	return ok
}

// RoomIDs returns every live room id, sorted.
func (ri *RoomIndex) RoomIDs() []string {
	ids := make([]string, 0, len(ri.members))
	for roomID := range ri.members {
		ids = append(ids, roomID)
	}
	sort.Strings(ids)
	return ids
}
