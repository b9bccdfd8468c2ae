package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAlreadyRegistered is returned when a ConnectionID is registered twice.
var ErrAlreadyRegistered = errors.New("connection already registered")

// ErrNotLive is returned when pushing to a connection that is not registered.
var ErrNotLive = errors.New("connection not live")

// Registry maps each live connection to its Outbox. It knows nothing about
// queues or rooms; it only answers "is this id still connected?".
// All methods are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	conns      map[ConnectionID]*Outbox
	bufferSize int
}

// NewRegistry creates an empty Registry whose outboxes buffer bufferSize events.
func NewRegistry(bufferSize int) *Registry {
	return &Registry{
		conns:      make(map[ConnectionID]*Outbox),
		bufferSize: bufferSize,
	}
}

// Register records id as live and returns its new Outbox.
//
// Precondition: id must be non-empty.
// Postcondition: IsLive(id) is true, or ErrAlreadyRegistered is returned.
func (r *Registry) Register(id ConnectionID) (*Outbox, error) {
	if id == "" {
		return nil, errors.New("connection id must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return nil, fmt.Errorf("connection %s: %w", id, ErrAlreadyRegistered)
	}
	out := NewOutbox(id, r.bufferSize)
	r.conns[id] = out
	return out, nil
}

// Deregister removes id and closes its Outbox. Deregistering an unknown or
// already removed id is a no-op.
//
// Postcondition: IsLive(id) is false. Returns true if id was live.
func (r *Registry) Deregister(id ConnectionID) bool {
	r.mu.Lock()
	out, exists := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if exists {
		out.Close()
	}
	return exists
}

// IsLive reports whether id is currently registered.
func (r *Registry) IsLive(id ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// Push delivers env to id's Outbox without blocking.
//
// Postcondition: env is buffered for id, or an error wrapping ErrNotLive,
// ErrOutboxClosed, or ErrOutboxFull is returned.
func (r *Registry) Push(id ConnectionID, env Envelope) error {
	r.mu.RLock()
	out, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s: %w", id, ErrNotLive)
	}
	return out.Push(env)
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
