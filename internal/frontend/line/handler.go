package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/frontend"
	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// Handler bridges one line client to the matchmaker: it greets the client,
// pumps the connection's outbox onto the wire, and forwards every decoded
// inbound envelope.
type Handler struct {
	matchmaker frontend.Matchmaker
	logger     *zap.Logger
}

// NewHandler creates a line session handler.
//
// Precondition: matchmaker and logger must be non-nil.
func NewHandler(matchmaker frontend.Matchmaker, logger *zap.Logger) *Handler {
	return &Handler{matchmaker: matchmaker, logger: logger}
}

// HandleSession runs until the client disconnects or ctx is cancelled.
//
// Postcondition: The connection id is deregistered and its disconnect has been
// submitted before HandleSession returns.
func (h *Handler) HandleSession(ctx context.Context, conn *Conn) error {
	id := frontend.NewConnectionID()
	logger := h.logger.With(zap.String("conn", string(id)), zap.String("remote_addr", conn.RemoteAddr().String()))

	out, err := h.matchmaker.Connect(ctx, id)
	if err != nil {
		return fmt.Errorf("connecting %s: %w", id, err)
	}
	logger.Info("line client connected")

	// Blocking reads only return when the socket closes.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.pump(conn, id, out, logger)
	}()

	defer func() {
		_ = conn.Close()
		// Leave deregisters first, which closes the outbox and ends the pump.
		if err := frontend.Leave(h.matchmaker, id); err != nil {
			logger.Warn("reporting disconnect", zap.Error(err))
		}
		<-writerDone
		logger.Info("line client disconnected")
	}()

	return h.readLoop(ctx, conn, id, logger)
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn, id session.ConnectionID, logger *zap.Logger) error {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				logger.Warn("dropping malformed line", zap.Error(err))
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading from %s: %w", id, err)
		}
		if err := h.matchmaker.Dispatch(ctx, id, env); err != nil {
			return fmt.Errorf("dispatching %s from %s: %w", env.Event, id, err)
		}
	}
}

func (h *Handler) pump(conn *Conn, id session.ConnectionID, out *session.Outbox, logger *zap.Logger) {
	if err := conn.WriteEnvelope(frontend.Greeting(id)); err != nil {
		logger.Debug("greeting line client", zap.Error(err))
		_ = conn.Close()
	}
	for env := range out.Events() {
		if err := conn.WriteEnvelope(env); err != nil {
			logger.Debug("writing to line client", zap.String("event", env.Event), zap.Error(err))
			// Keep draining so the outbox never fills while the loop still
			// addresses this id.
			continue
		}
	}
}
