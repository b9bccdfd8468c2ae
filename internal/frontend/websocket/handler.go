// Package websocket serves the matchmaker over plain WebSockets, one JSON
// envelope per text frame.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/frontend"
	"github.com/cory-johannsen/duelhub/internal/game/matchmaking"
	"github.com/cory-johannsen/duelhub/internal/game/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Handler upgrades HTTP requests and bridges each socket to the matchmaker.
type Handler struct {
	matchmaker frontend.Matchmaker
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewHandler creates a WebSocket handler. An origin of "*" admits every
// browser origin; otherwise the Origin header must match one entry exactly.
//
// Precondition: matchmaker and logger must be non-nil.
func NewHandler(matchmaker frontend.Matchmaker, allowedOrigins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		matchmaker: matchmaker,
		logger:     logger,
		conns:      make(map[*websocket.Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// ServeHTTP upgrades the request and runs the session until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	id := frontend.NewConnectionID()
	logger := h.logger.With(zap.String("conn", string(id)), zap.String("remote_addr", conn.RemoteAddr().String()))

	out, err := h.matchmaker.Connect(r.Context(), id)
	if err != nil {
		logger.Warn("rejecting websocket connection", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "matchmaking unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	logger.Info("websocket client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writePump(conn, id, out, logger)
	}()

	readPump(conn, id, h.matchmaker, logger)

	_ = conn.Close()
	if err := frontend.Leave(h.matchmaker, id); err != nil && !errors.Is(err, matchmaking.ErrStopped) {
		logger.Warn("reporting disconnect", zap.Error(err))
	}
	<-writerDone
	logger.Info("websocket client disconnected")
}

// CloseAll closes every open socket and refuses new ones. Hijacked
// connections outlive http.Server.Shutdown, so the owner calls this on stop.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.Close()
	}
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

func readPump(conn *websocket.Conn, id session.ConnectionID, m frontend.Matchmaker, logger *zap.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read", zap.Error(err))
			}
			return
		}
		var env session.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if err := m.Dispatch(context.Background(), id, env); err != nil {
			logger.Warn("dispatching event", zap.String("event", env.Event), zap.Error(err))
			return
		}
	}
}

func writePump(conn *websocket.Conn, id session.ConnectionID, out *session.Outbox, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeEnvelope(conn, frontend.Greeting(id)); err != nil {
		logger.Debug("greeting websocket client", zap.Error(err))
		_ = conn.Close()
	}

	events := out.Events()
	for {
		select {
		case env, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeEnvelope(conn, env); err != nil {
				// Keep draining until the outbox closes.
				logger.Debug("writing to websocket client", zap.String("event", env.Event), zap.Error(err))
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("pinging websocket client", zap.Error(err))
			}
		}
	}
}

func writeEnvelope(conn *websocket.Conn, env session.Envelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
