package websocket

import (
	"log/slog"
	"sort"
)

// Registry holds the live connections, at most one per user, together with
// the room index built over them. It is owned by the hub loop; nothing here
// locks.
type Registry struct {
	clients map[string]*Client
	rooms   *RoomIndex
}

func NewRegistry() *Registry {
	r := &Registry{clients: make(map[string]*Client)}
	r.rooms = newRoomIndex(r)
	return r
}

// Rooms returns the room index kept consistent with this registry.
func (r *Registry) Rooms() *RoomIndex {
	return r.rooms
}

// AddClient registers c under its user id. A previous connection for the
// same user is evicted first: its rooms are purged from the index and it is
// returned so the caller can close it.
func (r *Registry) AddClient(c *Client) (evicted *Client) {
	if prev, ok := r.clients[c.userID]; ok && prev != c {
		r.RemoveClient(prev.userID)
		evicted = prev
		slog.Info("Evicting previous connection", "userID", c.userID, "oldClientID", prev.id, "newClientID", c.id)
	}
	r.clients[c.userID] = c
	return evicted
}

// RemoveClient drops the user's connection and every room membership it
// held. Empty rooms are deleted on the way.
func (r *Registry) RemoveClient(userID string) *Client {
	c, ok := r.clients[userID]
	if !ok {
		return nil
	}
	for _, roomID := range c.Rooms() {
		r.rooms.RemoveFromRoom(userID, roomID)
	}
	delete(r.clients, userID)
	return c
}

func (r *Registry) GetClient(userID string) (*Client, bool) {
	c, ok := r.clients[userID]
	return c, ok
}

// GetAllClients returns the connections ordered by user id.
func (r *Registry) GetAllClients() []*Client {
	all := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].userID < all[j].userID })
	return all
}

func (r *Registry) Len() int {
	return len(r.clients)
}
