// Package socketio serves the matchmaker over Socket.IO, the protocol the
// browser client speaks natively. Event names and payloads are the same ones
// the other transports frame as JSON envelopes.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	gosocketio "github.com/googollee/go-socket.io"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/frontend"
	"github.com/cory-johannsen/duelhub/internal/game/matchmaking"
	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// Namespace is the only Socket.IO namespace the server answers on.
const Namespace = "/"

// Server adapts a Socket.IO server to the matchmaker. It satisfies
// server.Service and http.Handler.
type Server struct {
	io         *gosocketio.Server
	matchmaker frontend.Matchmaker
	logger     *zap.Logger

	mu      sync.Mutex
	pumps   map[session.ConnectionID]chan struct{}
	stopped bool
}

// NewServer creates a Socket.IO server bound to matchmaker.
//
// Precondition: matchmaker and logger must be non-nil.
func NewServer(matchmaker frontend.Matchmaker, logger *zap.Logger) *Server {
	s := &Server{
		io:         gosocketio.NewServer(nil),
		matchmaker: matchmaker,
		logger:     logger,
		pumps:      make(map[session.ConnectionID]chan struct{}),
	}
	s.io.OnConnect(Namespace, s.onConnect)
	s.io.OnEvent(Namespace, matchmaking.EventPlayCard, s.eventHandler(matchmaking.EventPlayCard))
	s.io.OnEvent(Namespace, matchmaking.EventAttack, s.eventHandler(matchmaking.EventAttack))
	s.io.OnError(Namespace, s.onError)
	s.io.OnDisconnect(Namespace, s.onDisconnect)
	return s
}

// ServeHTTP hands engine.io polling and upgrade requests to the Socket.IO server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHTTP(w, r)
}

// Start accepts Socket.IO sessions until Stop is called.
func (s *Server) Start() error {
	err := s.io.Serve()
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil
	}
	return err
}

// Stop closes every session and the underlying server.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if err := s.io.Close(); err != nil {
		s.logger.Warn("closing socket.io server", zap.Error(err))
	}
	s.logger.Info("socket.io server stopped")
}

func connID(c gosocketio.Conn) session.ConnectionID {
	return session.ConnectionID(c.ID())
}

func (s *Server) onConnect(c gosocketio.Conn) error {
	id := connID(c)
	out, err := s.matchmaker.Connect(context.Background(), id)
	if err != nil {
		s.logger.Warn("rejecting socket.io connection", zap.String("conn", string(id)), zap.Error(err))
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.pumps[id] = done
	s.mu.Unlock()

	go s.pump(c, out, done)
	s.logger.Info("socket.io client connected",
		zap.String("conn", string(id)),
		zap.Stringer("remote_addr", c.RemoteAddr()),
	)
	return nil
}

// pump emits every outbox event on the socket until the outbox is closed.
func (s *Server) pump(c gosocketio.Conn, out *session.Outbox, done chan struct{}) {
	defer close(done)
	for env := range out.Events() {
		c.Emit(env.Event, env.Data)
	}
}

// eventHandler dispatches the event body as raw, undecoded JSON.
func (s *Server) eventHandler(event string) func(gosocketio.Conn, json.RawMessage) {
	return func(c gosocketio.Conn, body json.RawMessage) {
		id := connID(c)
		env := session.Envelope{Event: event, Data: body}
		if err := s.matchmaker.Dispatch(context.Background(), id, env); err != nil && !errors.Is(err, matchmaking.ErrStopped) {
			s.logger.Warn("dispatching event", zap.String("conn", string(id)), zap.String("event", event), zap.Error(err))
		}
	}
}

func (s *Server) onError(c gosocketio.Conn, err error) {
	if c == nil {
		s.logger.Warn("socket.io error", zap.Error(err))
		return
	}
	s.logger.Warn("socket.io error", zap.String("conn", c.ID()), zap.Error(err))
}

func (s *Server) onDisconnect(c gosocketio.Conn, reason string) {
	id := connID(c)
	if err := frontend.Leave(s.matchmaker, id); err != nil && !errors.Is(err, matchmaking.ErrStopped) {
		s.logger.Warn("reporting disconnect", zap.String("conn", string(id)), zap.Error(err))
	}

	s.mu.Lock()
	done, ok := s.pumps[id]
	delete(s.pumps, id)
	s.mu.Unlock()
	if ok {
		<-done
	}
	s.logger.Info("socket.io client disconnected", zap.String("conn", string(id)), zap.String("reason", reason))
}
