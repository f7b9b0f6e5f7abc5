package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBufferSize = 256
)

var (
	ErrClientDisconnected = errors.New("client disconnected")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// Conn is the subset of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// MessageLimiter throttles inbound frames per user.
type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID string) (bool, error)
}

// Client is one live, authenticated connection.
type Client struct {
	id          string
	hub         *Hub
	conn        Conn
	userID      string
	connectedAt time.Time

	// rooms is the set of room ids this connection joined (activeRooms).
	rooms map[string]struct{}
	mu    sync.RWMutex

	send       chan []byte
	sendMu     sync.Mutex
	sendClosed bool

	ctx    context.Context
	cancel context.CancelFunc
	closed int32
}

func NewClient(hub *Hub, conn Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:          uuid.New().String(),
		hub:         hub,
		conn:        conn,
		userID:      userID,
		connectedAt: time.Now(),
		rooms:       make(map[string]struct{}),
		send:        make(chan []byte, sendBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (c *Client) GetID() string {
	return c.id
}

func (c *Client) GetUserID() string {
	return c.userID
}

func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// Rooms returns the joined room ids in sorted order.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func (c *Client) InRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

// IsOpen reports whether the connection can still accept frames.
func (c *Client) IsOpen() bool {
	if atomic.LoadInt32(&c.closed) == 1 {
		return false
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return !c.sendClosed
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client as closed and cancels its context.
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		slog.Debug("Client marked as closed", "clientID", c.id, "userID", c.userID)
	}
}

// closeSend stops outbound delivery; the write pump sends a close frame
// and shuts the socket.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
		slog.Debug("Send channel closed", "clientID", c.id, "userID", c.userID)
	}
}

// Send queues one encoded frame. A full buffer closes the client.
func (c *Client) Send(data []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("Send buffer full, closing client", "clientID", c.id, "userID", c.userID)
		c.sendClosed = true
		close(c.send)
		return ErrSendBufferFull
	}
}

func (c *Client) readPump(limiter MessageLimiter) {
	defer func() {
		c.close()
		c.hub.Unregister(c)

		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "userID", c.userID, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket transport error", "clientID", c.id, "userID", c.userID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.userID, "error", err)
			}
			return
		}

		if limiter != nil {
			allowed, err := limiter.AllowMessage(c.ctx, c.userID)
			if err != nil {
				slog.Warn("Message rate limit check failed", "userID", c.userID, "error", err)
			} else if !allowed {
				slog.Warn("Message rate limit exceeded, dropping frame", "userID", c.userID)
				continue
			}
		}

		if !c.hub.Inbound(c, data) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
