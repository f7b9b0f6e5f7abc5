package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	ErrOriginRejected  = errors.New("origin not allowed")
	ErrUnauthenticated = errors.New("unauthorized")
)

// TokenVerifier turns a session token into a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// HandshakeError carries the HTTP status a rejected upgrade answers with.
type HandshakeError struct {
	Code   int
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Handshaker validates the origin and session cookie of an upgrade request.
type Handshaker struct {
	origins    map[string]struct{}
	cookieName string
	verifier   TokenVerifier
	upgrader   websocket.Upgrader
}

func NewHandshaker(allowedOrigins []string, cookieName string, verifier TokenVerifier) *Handshaker {
	h := &Handshaker{
		origins:    make(map[string]struct{}, len(allowedOrigins)),
		cookieName: cookieName,
		verifier:   verifier,
	}
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			h.origins[origin] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.CheckOrigin(r.Header.Get("Origin"))
		},
	}
	return h
}

// CheckOrigin requires an exact allow-list match. An absent origin fails.
func (h *Handshaker) CheckOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := h.origins[origin]
	return ok
}

// Authenticate resolves the user id for an upgrade request or returns a
// *HandshakeError.
func (h *Handshaker) Authenticate(ctx context.Context, origin, cookieHeader string) (string, error) {
	if !h.CheckOrigin(origin) {
		return "", &HandshakeError{Code: http.StatusForbidden, Reason: "Forbidden", Err: ErrOriginRejected}
	}

	token := tokenFromCookie(cookieHeader, h.cookieName)
	if token == "" {
		return "", &HandshakeError{Code: http.StatusUnauthorized, Reason: "Unauthorized", Err: ErrUnauthenticated}
	}
	if h.verifier == nil {
		return "", &HandshakeError{Code: http.StatusUnauthorized, Reason: "Unauthorized", Err: ErrUnauthenticated}
	}

	userID, err := h.verifier.VerifyToken(ctx, token)
	if err != nil {
		return "", &HandshakeError{Code: http.StatusUnauthorized, Reason: "Unauthorized", Err: fmt.Errorf("%w: %v", ErrUnauthenticated, err)}
	}
	if userID == "" {
		return "", &HandshakeError{Code: http.StatusUnauthorized, Reason: "Unauthorized", Err: ErrUnauthenticated}
	}
	return userID, nil
}

// tokenFromCookie reads one cookie out of a raw Cookie header, skipping
// malformed pairs.
func tokenFromCookie(header, name string) string {
	if header == "" || name == "" {
		return ""
	}
	r := &http.Request{Header: http.Header{"Cookie": {header}}}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// ServeWS authenticates and upgrades the request, registers the connection
// and starts its pumps.
func ServeWS(hub *Hub, hs *Handshaker, w http.ResponseWriter, r *http.Request) {
	userID, err := hs.Authenticate(r.Context(), r.Header.Get("Origin"), r.Header.Get("Cookie"))
	if err != nil {
		var herr *HandshakeError
		if errors.As(err, &herr) {
			slog.Warn("WebSocket handshake rejected", "origin", r.Header.Get("Origin"), "status", herr.Code, "error", herr.Err)
			http.Error(w, herr.Reason, herr.Code)
			return
		}
		slog.Error("WebSocket handshake failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the response.
		slog.Error("Failed to upgrade connection", "userID", userID, "error", err)
		return
	}

	client := NewClient(hub, conn, userID)
	if !hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(hub.limiter)
}
