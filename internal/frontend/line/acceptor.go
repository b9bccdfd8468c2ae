package line

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/config"
	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// EventServerFull is sent, just before closing, to a client turned away
// because MaxClients sessions are already open.
const EventServerFull = "server-full"

// SessionHandler processes one connected line client. It should return once
// ctx is cancelled or the connection closes.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// Acceptor owns the TCP listener of the line transport and one goroutine per
// open session.
type Acceptor struct {
	cfg     config.LineConfig
	handler SessionHandler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Conn]struct{}
	closed   bool
}

// NewAcceptor creates a line acceptor with the given configuration.
//
// Precondition: handler and logger must be non-nil.
func NewAcceptor(cfg config.LineConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[*Conn]struct{}),
	}
}

// ListenAndServe binds cfg.Addr() and serves until Stop.
func (a *Acceptor) ListenAndServe() error {
	lis, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(lis)
}

// Serve accepts sessions on lis until Stop. It takes ownership of lis.
//
// Postcondition: Returns nil after Stop, or the first non-temporary accept error.
func (a *Acceptor) Serve(lis net.Listener) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		lis.Close()
		return nil
	}
	a.listener = lis
	a.mu.Unlock()

	a.logger.Info("line acceptor listening", zap.String("addr", lis.Addr().String()))

	for {
		raw, err := lis.Accept()
		if err != nil {
			if a.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				a.logger.Warn("accepting connection", zap.Error(err))
				continue
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
		if !a.admit(conn) {
			a.turnAway(conn)
			continue
		}
		go a.run(conn)
	}
}

// admit records conn as a live session unless the acceptor is closed or full.
// The wait group is bumped under mu so Stop cannot miss a session.
func (a *Acceptor) admit(conn *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	if a.cfg.MaxClients > 0 && len(a.sessions) >= a.cfg.MaxClients {
		return false
	}
	a.sessions[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) turnAway(conn *Conn) {
	a.logger.Warn("turning away line client",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.Int("max_clients", a.cfg.MaxClients),
	)
	_ = conn.WriteEnvelope(session.Envelope{Event: EventServerFull})
	_ = conn.Close()
}

func (a *Acceptor) run(conn *Conn) {
	defer a.wg.Done()
	start := time.Now()
	addr := conn.RemoteAddr().String()

	defer func() {
		_ = conn.Close()
		a.mu.Lock()
		delete(a.sessions, conn)
		a.mu.Unlock()
	}()

	if err := a.handler.HandleSession(a.ctx, conn); err != nil {
		a.logger.Debug("line session ended",
			zap.String("remote_addr", addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	a.logger.Info("line session ended cleanly",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop closes the listener and every open session, then waits for the
// session goroutines to return.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.cancel()
	if a.listener != nil {
		a.listener.Close()
	}
	for conn := range a.sessions {
		_ = conn.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("line acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning reports whether the acceptor is listening.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener != nil && !a.closed
}

// Sessions returns the number of open sessions.
func (a *Acceptor) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
