package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"task-tracker/internal/models"
)

var errClosedConnection = errors.New("connection closed")

type sentFrame struct {
	messageType int
	data        []byte
}

// mockConn implements Conn for testing. Frames pushed on incoming are
// returned by ReadMessage until Close is called.
type mockConn struct {
	mu       sync.Mutex
	messages []sentFrame
	closed   bool

	incoming chan []byte
	done     chan struct{}
	once     sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.incoming:
		return websocket.TextMessage, data, nil
	case <-m.done:
		return 0, nil, errClosedConnection
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosedConnection
	}
	m.messages = append(m.messages, sentFrame{messageType: messageType, data: data})
	return nil
}

func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) getMessages() []sentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]sentFrame, len(m.messages))
	copy(result, m.messages)
	return result
}

// fakeTaskStore serves task ownership from memory.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*models.TaskAccess
	err   error
	panic bool
	calls int32
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*models.TaskAccess{
		"task123": {OwnerID: "owner1", SharedWith: []string{"user2"}},
	}}
}

func (f *fakeTaskStore) FindTaskAccessFields(ctx context.Context, taskID string) (*models.TaskAccess, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.panic {
		panic("store exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	access, ok := f.tasks[taskID]
	if !ok {
		return nil, nil
	}
	shared := append([]string(nil), access.SharedWith...)
	return &models.TaskAccess{OwnerID: access.OwnerID, SharedWith: shared}, nil
}

func (f *fakeTaskStore) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

// blockingTaskStore holds every lookup until release is closed. entered
// fires once the first lookup is waiting.
type blockingTaskStore struct {
	*fakeTaskStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingTaskStore() *blockingTaskStore {
	return &blockingTaskStore{
		fakeTaskStore: newFakeTaskStore(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (b *blockingTaskStore) FindTaskAccessFields(ctx context.Context, taskID string) (*models.TaskAccess, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeTaskStore.FindTaskAccessFields(ctx, taskID)
}

type fakeAudit struct {
	mu     sync.Mutex
	events []AuditEvent
	err    error
}

func (f *fakeAudit) PublishAudit(ctx context.Context, event AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeAudit) Events() []AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AuditEvent(nil), f.events...)
}

// fakeVerifier maps tokens to user ids.
type fakeVerifier map[string]string

func (f fakeVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if userID, ok := f[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid token")
}

type fakeLimiter struct {
	allow bool
	err   error
	calls int32
}

func (f *fakeLimiter) AllowMessage(ctx context.Context, userID string) (bool, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.allow, f.err
}

// createTestHub starts a hub over store with a short delete grace.
func createTestHub(t *testing.T, store TaskAccessStore) (*Hub, *fakeAudit) {
	t.Helper()
	audit := &fakeAudit{}
	hub := NewHub(HubOptions{
		Gate:        NewAccessGate(store, audit),
		DeleteGrace: 50 * time.Millisecond,
		AuthTimeout: time.Second,
	})
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub, audit
}

func createTestClient(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(hub, newMockConn(), userID)
	require.True(t, hub.Register(c))
	flush(hub)
	return c
}

// flush waits until everything queued on the loop so far has run.
func flush(hub *Hub) {
	hub.query(func() {})
}

func sendFrame(t *testing.T, hub *Hub, c *Client, msgType EnvelopeType, payload interface{}) {
	t.Helper()
	env, err := NewEnvelope(msgType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.True(t, hub.Inbound(c, data))
}

func joinRoom(t *testing.T, hub *Hub, c *Client, roomID string, roomType RoomType) {
	t.Helper()
	sendFrame(t, hub, c, TypeJoinRoom, RoomPayload{RoomID: roomID, RoomType: roomType})
	require.Eventually(t, func() bool { return c.InRoom(roomID) }, time.Second, 5*time.Millisecond)
}

func updateRoom(t *testing.T, hub *Hub, c *Client, updateType UpdateType, updates TaskUpdates) {
	t.Helper()
	sendFrame(t, hub, c, TypeUpdateRoom, UpdatePayload{UpdateType: updateType, Updates: updates})
}

// receive reads the next queued frame for c.
func receive(t *testing.T, c *Client) *Envelope {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return &env
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.userID)
		return nil
	}
}

func decodePayload(t *testing.T, env *Envelope) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return payload
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected message for %s: %s", c.userID, data)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// checkInvariants verifies the room index and the clients' joined sets
// agree with each other.
func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()
	rooms := r.Rooms()
	for _, roomID := range rooms.RoomIDs() {
		members := rooms.GetMembers(roomID)
		require.NotEmpty(t, members, "room %s is empty", roomID)
		for _, userID := range members {
			c, ok := r.GetClient(userID)
			require.True(t, ok, "room %s holds unregistered user %s", roomID, userID)
			require.True(t, c.InRoom(roomID), "user %s missing room %s", userID, roomID)
		}
	}
	for _, c := range r.GetAllClients() {
		for _, roomID := range c.Rooms() {
			require.Contains(t, rooms.GetMembers(roomID), c.userID)
		}
	}
}
