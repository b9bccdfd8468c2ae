package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// ErrStopped is returned by submissions made after Stop.
var ErrStopped = errors.New("matchmaking service stopped")

// ErrAlreadyStarted is returned when Start is called on a running service.
var ErrAlreadyStarted = errors.New("matchmaking service already started")

type connectMsg struct{ id session.ConnectionID }

type disconnectMsg struct{ id session.ConnectionID }

type relayMsg struct {
	sender  session.ConnectionID
	room    string
	event   string
	payload json.RawMessage
}

type snapshotMsg struct{ reply chan Snapshot }

type serviceState int

const (
	stateIdle serviceState = iota
	stateRunning
	stateStopped
)

// Service owns an Engine and feeds it from a single event loop, so pairing
// decisions, relays, and teardowns never interleave. Transports talk to the
// Service from any goroutine; nothing in the loop waits on network I/O.
//
// Service satisfies server.Service: Start blocks running the loop, Stop ends it.
type Service struct {
	registry *session.Registry
	engine   *Engine
	logger   *zap.Logger

	inbox chan any
	quit  chan struct{}
	done  chan struct{}

	mu    sync.Mutex
	state serviceState
}

// NewService creates a Service around a fresh Engine. Independent Services
// share nothing and can run side by side.
//
// Precondition: registry, resolver, and logger must be non-nil; mailboxSize >= 1.
func NewService(registry *session.Registry, resolver *Resolver, mailboxSize int, logger *zap.Logger) *Service {
	if mailboxSize < 1 {
		mailboxSize = 1
	}
	return &Service{
		registry: registry,
		engine:   NewEngine(registry, resolver, logger),
		logger:   logger,
		inbox:    make(chan any, mailboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the event loop until Stop is called.
//
// Postcondition: Returns nil after Stop, ErrStopped if already stopped, or
// ErrAlreadyStarted if another Start is running.
func (s *Service) Start() error {
	s.mu.Lock()
	switch s.state {
	case stateRunning:
		s.mu.Unlock()
		return ErrAlreadyStarted
	case stateStopped:
		s.mu.Unlock()
		return ErrStopped
	}
	s.state = stateRunning
	s.mu.Unlock()

	defer close(s.done)
	s.logger.Info("matchmaking loop started")
	for {
		select {
		case msg := <-s.inbox:
			s.handle(msg)
		case <-s.quit:
			snap := s.engine.Snapshot()
			s.logger.Info("matchmaking loop stopped",
				zap.Int("waiting", len(snap.Waiting)),
				zap.Int("rooms", len(snap.Rooms)),
			)
			return nil
		}
	}
}

// Stop ends the event loop and waits for it to exit. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	prev := s.state
	s.state = stateStopped
	s.mu.Unlock()

	if prev == stateStopped {
		return
	}
	close(s.quit)
	if prev == stateRunning {
		<-s.done
	}
}

// Running reports whether the event loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Connect registers id and asks the loop to pair or queue it. The returned
// Outbox carries every event destined for this connection.
//
// Postcondition: Returns the Outbox, or an error with id left unregistered.
func (s *Service) Connect(ctx context.Context, id session.ConnectionID) (*session.Outbox, error) {
	out, err := s.registry.Register(id)
	if err != nil {
		return nil, fmt.Errorf("registering connection: %w", err)
	}
	if err := s.submit(ctx, connectMsg{id: id}); err != nil {
		s.registry.Deregister(id)
		return nil, err
	}
	return out, nil
}

// Disconnect marks id dead immediately, then asks the loop to drop it from
// the queue or tear down its room. If ctx ends before the loop accepts the
// message, delivery continues in the background until the loop takes it or
// stops, so a paired survivor is always told.
//
// Postcondition: Returns nil once teardown is submitted or deferred, or ErrStopped.
func (s *Service) Disconnect(ctx context.Context, id session.ConnectionID) error {
	s.registry.Deregister(id)
	msg := disconnectMsg{id: id}
	err := s.submit(ctx, msg)
	if err == nil || errors.Is(err, ErrStopped) {
		return err
	}
	s.logger.Warn("matchmaking loop congested, deferring disconnect",
		zap.String("conn", string(id)),
		zap.Error(err),
	)
	go func() { _ = s.submit(context.Background(), msg) }()
	return nil
}

// PlayCard relays card to the other member of room as opponent-played-card.
func (s *Service) PlayCard(ctx context.Context, sender session.ConnectionID, room string, card json.RawMessage) error {
	return s.submit(ctx, relayMsg{sender: sender, room: room, event: EventPlayCard, payload: card})
}

// Attack relays data to the other member of room as opponent-attack.
func (s *Service) Attack(ctx context.Context, sender session.ConnectionID, room string, data json.RawMessage) error {
	return s.submit(ctx, relayMsg{sender: sender, room: room, event: EventAttack, payload: data})
}

// Dispatch routes a raw client event. The body is only inspected for its room
// reference; malformed bodies and unknown events are dropped by the loop.
func (s *Service) Dispatch(ctx context.Context, sender session.ConnectionID, env session.Envelope) error {
	room, payload := parseGameplay(env.Event, env.Data)
	return s.submit(ctx, relayMsg{sender: sender, room: room, event: env.Event, payload: payload})
}

// Snapshot returns a copy of the queue and room table as seen by the loop
// after every message submitted before it.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.submit(ctx, snapshotMsg{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.quit:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Service) submit(ctx context.Context, msg any) error {
	select {
	case <-s.quit:
		return ErrStopped
	default:
	}
	select {
	case s.inbox <- msg:
		return nil
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) handle(msg any) {
	switch m := msg.(type) {
	case connectMsg:
		s.engine.Connect(m.id)
	case disconnectMsg:
		s.engine.Disconnect(m.id)
	case relayMsg:
		s.engine.Relay(m.sender, m.room, m.event, m.payload)
	case snapshotMsg:
		m.reply <- s.engine.Snapshot()
	default:
		s.logger.Error("unknown loop message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
