package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"
)

const (
	defaultDeleteGrace = time.Second
	defaultAuthTimeout = 5 * time.Second
	registerTimeout    = 5 * time.Second
	presenceTimeout    = 3 * time.Second
)

// Presence records which users currently hold a connection.
type Presence interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

type ClientMessage struct {
	Client *Client
	Data   []byte
}

type HubOptions struct {
	Gate     *AccessGate
	Presence Presence
	Limiter  MessageLimiter

	// DeleteGrace is how long a deleted task's room outlives the
	// DELETE_TASK broadcast.
	DeleteGrace time.Duration

	// AuthTimeout bounds one authorization lookup.
	AuthTimeout time.Duration
}

// Hub owns the registry and room index. Every mutation of either runs on
// the Run goroutine; other goroutines hand work over through channels.
type Hub struct {
	registry   *Registry
	dispatcher *Dispatcher

	register   chan *Client
	unregister chan *Client
	inbound    chan *ClientMessage
	tasks      chan func()

	presence Presence
	limiter  MessageLimiter

	ctx     context.Context
	cancel  context.CancelFunc
	running int32
	done    chan struct{}
}

func NewHub(opts HubOptions) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.DeleteGrace <= 0 {
		opts.DeleteGrace = defaultDeleteGrace
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}
	if opts.Gate == nil {
		opts.Gate = NewAccessGate(nil, nil)
	}

	h := &Hub{
		registry:   NewRegistry(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *ClientMessage, 256),
		tasks:      make(chan func(), 256),
		presence:   opts.Presence,
		limiter:    opts.Limiter,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.dispatcher = newDispatcher(h, opts.Gate, opts.AuthTimeout, opts.DeleteGrace)
	return h
}

func (h *Hub) Run() {
	atomic.StoreInt32(&h.running, 1)
	defer close(h.done)

	slog.Info("WebSocket hub started")
	for {
		select {
		case client := <-h.register:
			h.safely("register", func() { h.registerClient(client) })

		case client := <-h.unregister:
			h.safely("unregister", func() { h.unregisterClient(client) })

		case msg := <-h.inbound:
			h.safely("dispatch", func() { h.dispatcher.Handle(msg.Client, msg.Data) })

		case task := <-h.tasks:
			h.safely("task", task)

		case <-h.ctx.Done():
			h.shutdown()
			slog.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Stop ends the loop and closes every connection.
func (h *Hub) Stop() {
	h.cancel()
	if atomic.LoadInt32(&h.running) == 1 {
		<-h.done
	}
}

// safely runs fn and contains a panic to the one operation.
func (h *Hub) safely(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in hub", "op", op, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (h *Hub) shutdown() {
	for _, c := range h.registry.GetAllClients() {
		h.registry.RemoveClient(c.userID)
		c.closeSend()
	}
}

func (h *Hub) registerClient(client *Client) {
	if evicted := h.registry.AddClient(client); evicted != nil {
		evicted.closeSend()
	}
	slog.Info("Client registered", "clientID", client.id, "userID", client.userID)
	h.updatePresence(client.userID, true)
}

func (h *Hub) unregisterClient(client *Client) {
	defer client.closeSend()

	current, ok := h.registry.GetClient(client.userID)
	if !ok || current != client {
		// already evicted by a newer connection
		return
	}
	h.registry.RemoveClient(client.userID)
	slog.Info("Client unregistered", "clientID", client.id, "userID", client.userID)
	h.updatePresence(client.userID, false)
}

func (h *Hub) updatePresence(userID string, online bool) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()

		var err error
		if online {
			err = h.presence.SetUserOnline(ctx, userID)
		} else {
			err = h.presence.SetUserOffline(ctx, userID)
		}
		if err != nil {
			slog.Error("Failed to update presence", "userID", userID, "online", online, "error", err)
		}
	}()
}

// Register hands a new connection to the loop.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	case <-time.After(registerTimeout):
		slog.Error("Timeout sending registration request", "clientID", c.id, "userID", c.userID)
		return false
	}
}

// Unregister hands a closed connection to the loop.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Inbound queues one raw frame from c. It returns false once either the hub
// or the client is shutting down.
func (h *Hub) Inbound(c *Client, data []byte) bool {
	select {
	case h.inbound <- &ClientMessage{Client: c, Data: data}:
		return true
	case <-h.ctx.Done():
		return false
	case <-c.ctx.Done():
		return false
	}
}

func (h *Hub) enqueue(fn func()) bool {
	select {
	case h.tasks <- fn:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// query runs fn on the loop and waits for it.
func (h *Hub) query(fn func()) bool {
	done := make(chan struct{})
	if !h.enqueue(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// SendToUser pushes one envelope to the user's connection if there is one.
// Offline users are skipped; nothing is queued for later.
func (h *Hub) SendToUser(userID string, msgType EnvelopeType, payload interface{}) {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		slog.Error("Failed to build envelope", "userID", userID, "type", msgType, "error", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal envelope", "userID", userID, "type", msgType, "error", err)
		return
	}

	h.enqueue(func() {
		client, ok := h.registry.GetClient(userID)
		if !ok || !client.IsOpen() {
			slog.Debug("User not connected, dropping message", "userID", userID, "type", msgType)
			return
		}
		if err := client.Send(data); err != nil {
			slog.Debug("Failed to send to user", "userID", userID, "type", msgType, "error", err)
		}
	})
}

// DeleteTask broadcasts DELETE_TASK to the task room and tears the room down
// after the grace period.
func (h *Hub) DeleteTask(taskID string, payload TaskUpdates) {
	h.enqueue(func() { h.dispatcher.deleteTask(taskID, payload) })
}

// ApplyTaskEvent routes a task change signalled by the task API.
func (h *Hub) ApplyTaskEvent(ev TaskEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload := ev.NormalizedPayload()

	h.enqueue(func() {
		switch ev.Type {
		case TaskEventDeleted:
			h.dispatcher.deleteTask(ev.TaskID, payload)
		case TaskEventUpdated:
			h.dispatcher.broadcast(ev.TaskID, TypeTaskUpdate, payload)
		case TaskEventShared:
			h.dispatcher.applyShare(ev.ActorID, ev.TaskID, payload)
		case TaskEventUnshared:
			h.dispatcher.applyUnshare(ev.ActorID, ev.TaskID, payload)
		}
	})
	return nil
}

// Members returns the users subscribed to roomID.
func (h *Hub) Members(roomID string) []string {
	var members []string
	h.query(func() { members = h.registry.Rooms().GetMembers(roomID) })
	return members
}

// HasRoom reports whether roomID currently has members.
func (h *Hub) HasRoom(roomID string) bool {
	var ok bool
	h.query(func() { ok = h.registry.Rooms().HasRoom(roomID) })
	return ok
}

// ClientRooms returns the rooms joined by the user's connection.
func (h *Hub) ClientRooms(userID string) ([]string, bool) {
	var (
		rooms []string
		found bool
	)
	h.query(func() {
		if c, ok := h.registry.GetClient(userID); ok {
			rooms, found = c.Rooms(), true
		}
	})
	return rooms, found
}

type ClientInfo struct {
	UserID      string    `json:"userId"`
	ClientID    string    `json:"clientId"`
	ConnectedAt time.Time `json:"connectedAt"`
	Rooms       []string  `json:"rooms"`
}

type Stats struct {
	Connections int                 `json:"connections"`
	Clients     []ClientInfo        `json:"clients"`
	Rooms       map[string][]string `json:"rooms"`
}

// Stats snapshots the registry and room index.
func (h *Hub) Stats() Stats {
	stats := Stats{Rooms: map[string][]string{}}
	h.query(func() {
		for _, c := range h.registry.GetAllClients() {
			stats.Clients = append(stats.Clients, ClientInfo{
				UserID:      c.userID,
				ClientID:    c.id,
				ConnectedAt: c.connectedAt,
				Rooms:       c.Rooms(),
			})
		}
		stats.Connections = len(stats.Clients)
		rooms := h.registry.Rooms()
		for _, roomID := range rooms.RoomIDs() {
			stats.Rooms[roomID] = rooms.GetMembers(roomID)
		}
	})
	return stats
}
