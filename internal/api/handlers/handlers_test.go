package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"task-tracker/internal/models"
	"task-tracker/internal/services"
	"task-tracker/internal/websocket"
	"task-tracker/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNotifications struct {
	list      []models.Notification
	err       error
	lastID    string
	lastUser  string
	created   *models.CreateNotificationRequest
	readCount int64
}

func (f *fakeNotifications) Create(_ context.Context, req *models.CreateNotificationRequest) (*models.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = req
	return &models.Notification{ID: "n1", UserID: req.UserID, Type: req.Type, Message: req.Message}, nil
}

func (f *fakeNotifications) ListUnread(_ context.Context, userID string) ([]models.Notification, error) {
	f.lastUser = userID
	return f.list, f.err
}

func (f *fakeNotifications) ListAll(_ context.Context, userID string) ([]models.Notification, error) {
	f.lastUser = userID
	return f.list, f.err
}

func (f *fakeNotifications) MarkAsRead(_ context.Context, id, userID string) (*models.Notification, error) {
	f.lastID, f.lastUser = id, userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Notification{ID: id, UserID: userID, IsRead: true}, nil
}

func (f *fakeNotifications) MarkAllAsRead(_ context.Context, userID string) (int64, error) {
	f.lastUser = userID
	return f.readCount, f.err
}

func (f *fakeNotifications) Delete(_ context.Context, id, userID string) error {
	f.lastID, f.lastUser = id, userID
	return f.err
}

// withUser stands in for RequireAuth.
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}

func notificationEngine(svc NotificationService, userID string) *gin.Engine {
	h := NewNotificationHandler(svc)
	r := gin.New()
	g := r.Group("/notifications", withUser(userID))
	g.GET("/unread", h.GetUnread)
	g.GET("", h.GetAll)
	g.PATCH("/read-all", h.MarkAllAsRead)
	g.PATCH("/:id/read", h.MarkAsRead)
	g.DELETE("/:id", h.Delete)
	r.POST("/internal/notifications", h.Create)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestNotificationHandler_Lists(t *testing.T) {
	svc := &fakeNotifications{list: []models.Notification{{ID: "n1", Message: "hi"}}}
	r := notificationEngine(svc, "user1")

	w, resp := do(t, r, http.MethodGet, "/notifications/unread", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.ErrCodeSuccess, resp.Code)
	assert.Equal(t, "user1", svc.lastUser)
	assert.Len(t, resp.Data, 1)

	svc.list = nil
	w, resp = do(t, r, http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, resp.Data)
}

func TestNotificationHandler_RequiresUser(t *testing.T) {
	r := notificationEngine(&fakeNotifications{}, "")

	w, resp := do(t, r, http.MethodGet, "/notifications/unread", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrCodeUnauthorized, resp.Code)
}

func TestNotificationHandler_MarkAsRead(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakeNotifications{}
		r := notificationEngine(svc, "user1")

		w, _ := do(t, r, http.MethodPatch, "/notifications/abc/read", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "abc", svc.lastID)
		assert.Equal(t, "user1", svc.lastUser)
	})

	t.Run("not found", func(t *testing.T) {
		svc := &fakeNotifications{err: services.ErrNotificationNotFound}
		r := notificationEngine(svc, "user1")

		w, resp := do(t, r, http.MethodPatch, "/notifications/abc/read", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, response.ErrCodeNotFound, resp.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &fakeNotifications{err: errors.New("db down")}
		r := notificationEngine(svc, "user1")

		w, resp := do(t, r, http.MethodPatch, "/notifications/abc/read", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, response.ErrCodeInternal, resp.Code)
	})
}

func TestNotificationHandler_MarkAllAndDelete(t *testing.T) {
	svc := &fakeNotifications{readCount: 3}
	r := notificationEngine(svc, "user1")

	w, resp := do(t, r, http.MethodPatch, "/notifications/read-all", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"updated": float64(3)}, resp.Data)

	w, _ = do(t, r, http.MethodDelete, "/notifications/n9", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "n9", svc.lastID)

	svc.err = services.ErrNotificationNotFound
	w, _ = do(t, r, http.MethodDelete, "/notifications/n9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandler_Create(t *testing.T) {
	svc := &fakeNotifications{}
	r := notificationEngine(svc, "")

	body := `{"userId":"3f1c7f3e-7a56-4c61-9a59-1f0f1d6d2b10","type":"TASK_SHARED","message":"shared"}`
	w, _ := do(t, r, http.MethodPost, "/internal/notifications", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, models.NotificationTaskShared, svc.created.Type)

	w, resp := do(t, r, http.MethodPost, "/internal/notifications", `{"type":"TASK_SHARED"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrCodeParamInvalid, resp.Code)

	svc.err = services.ErrInvalidNotification
	w, _ = do(t, r, http.MethodPost, "/internal/notifications", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type recordingSink struct {
	events []websocket.TaskEvent
}

func (s *recordingSink) ApplyTaskEvent(ev websocket.TaskEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

func TestTaskEventHandler_PostEvent(t *testing.T) {
	sink := &recordingSink{}
	r := gin.New()
	r.POST("/internal/tasks/:id/events", withUser("stranger"), NewTaskEventHandler(sink).PostEvent)

	w, _ := do(t, r, http.MethodPost, "/internal/tasks/task123/events",
		`{"type":"task.updated","payload":{"status":"done"}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "task123", sink.events[0].TaskID)
	// a user on the request context never becomes the actor
	assert.Empty(t, sink.events[0].ActorID)

	w, _ = do(t, r, http.MethodPost, "/internal/tasks/task123/events",
		`{"type":"task.shared","actorId":"someone","payload":{}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "someone", sink.events[1].ActorID)

	w, resp := do(t, r, http.MethodPost, "/internal/tasks/task123/events", `{"type":"task.exploded"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrCodeParamInvalid, resp.Code)
	assert.Len(t, sink.events, 2)

	w, _ = do(t, r, http.MethodPost, "/internal/tasks/task123/events", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/healthz", Health(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    nil,
	}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	r = gin.New()
	r.GET("/healthz", Health(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return errors.New("refused") }),
	}))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"degraded","degraded":{"postgres":"refused"}}`, w.Body.String())
}

func TestWSHandler_Stats(t *testing.T) {
	hub := websocket.NewHub(websocket.HubOptions{})
	go hub.Run()
	defer hub.Stop()

	r := gin.New()
	r.GET("/ws/stats", NewWSHandler(hub, nil).GetStats)

	w, resp := do(t, r, http.MethodGet, "/ws/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), data["connections"])
	assert.Equal(t, map[string]interface{}{}, data["rooms"])
}
