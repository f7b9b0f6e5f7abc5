package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyToken(_ context.Context, token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.err
}

func echoUser(c *gin.Context) {
	id, _ := UserID(c)
	c.String(http.StatusOK, id)
}

func TestRequireAuth(t *testing.T) {
	am := NewAuthMiddleware(fakeVerifier{"good": "user1"}, "token")
	r := gin.New()
	r.GET("/me", am.RequireAuth(), echoUser)

	tests := []struct {
		name   string
		header string
		cookie string
		code   int
		body   string
	}{
		{name: "bearer", header: "Bearer good", code: http.StatusOK, body: "user1"},
		{name: "lowercase scheme", header: "bearer good", code: http.StatusOK, body: "user1"},
		{name: "cookie", cookie: "good", code: http.StatusOK, body: "user1"},
		{name: "bad bearer", header: "Bearer nope", code: http.StatusUnauthorized},
		{name: "bad cookie", cookie: "nope", code: http.StatusUnauthorized},
		{name: "nothing", code: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic good", code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Run("blocks over limit", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: false}
		r := gin.New()
		r.GET("/x", NewRateLimitMiddleware(limiter).RateLimit(1, time.Minute), echoUser)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Len(t, limiter.keys, 1)
		assert.Contains(t, limiter.keys[0], "ip:")
	})

	t.Run("keys by user when authenticated", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: true}
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { c.Set(userIDKey, "user1") },
			NewRateLimitMiddleware(limiter).RateLimit(1, time.Minute), echoUser)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"rate_limit:user1:/x"}, limiter.keys)
	})

	t.Run("fails open on limiter error", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis down")}
		r := gin.New()
		r.GET("/x", NewRateLimitMiddleware(limiter).RateLimit(1, time.Minute), echoUser)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("nil limiter passes", func(t *testing.T) {
		r := gin.New()
		r.GET("/x", NewRateLimitMiddleware(nil).RateLimit(1, time.Minute), echoUser)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireServiceToken(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		bearer string
		code   int
	}{
		{name: "valid secret", secret: "svc", header: "svc", code: http.StatusOK},
		{name: "wrong secret", secret: "svc", header: "nope", code: http.StatusUnauthorized},
		{name: "missing header", secret: "svc", code: http.StatusUnauthorized},
		{name: "user token only", secret: "svc", bearer: "good", code: http.StatusUnauthorized},
		{name: "unconfigured secret", secret: "", header: "", code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/internal/x", RequireServiceToken(tt.secret), func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/internal/x", nil)
			if tt.header != "" {
				req.Header.Set(InternalTokenHeader, tt.header)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
