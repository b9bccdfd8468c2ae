// Package session tracks live client connections and their outbound mailboxes.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ConnectionID is the opaque identity of one live client connection.
type ConnectionID string

// Envelope is one outbound (or inbound) event: a name plus an opaque JSON body.
// It is also the wire frame of the WebSocket and line transports.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data and wraps it under event.
//
// Postcondition: Returns an Envelope whose Data is the JSON encoding of data, or an error.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// ErrOutboxClosed is returned when pushing to a connection that has gone away.
var ErrOutboxClosed = errors.New("outbox closed")

// ErrOutboxFull is returned when a slow client has not drained its buffer.
var ErrOutboxFull = errors.New("outbox buffer full")

// Outbox buffers events for one connection. The transport's writer goroutine
// drains Events; producers never block on Push.
type Outbox struct {
	id     ConnectionID
	events chan Envelope
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection.
//
// Postcondition: Returns an Outbox with an open events channel of at least one slot.
func NewOutbox(id ConnectionID, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:     id,
		events: make(chan Envelope, bufferSize),
	}
}

// ID returns the owning connection's identity.
func (o *Outbox) ID() ConnectionID {
	return o.id
}

// Push enqueues env without blocking.
//
// Postcondition: env is buffered, or ErrOutboxClosed / ErrOutboxFull is returned.
func (o *Outbox) Push(env Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("connection %s: %w", o.id, ErrOutboxClosed)
	}
	select {
	case o.events <- env:
		return nil
	default:
		return fmt.Errorf("connection %s: %w", o.id, ErrOutboxFull)
	}
}

// Events returns the channel the transport writer drains. It is closed when
// the connection is deregistered.
func (o *Outbox) Events() <-chan Envelope {
	return o.events
}

// Close marks the outbox closed and closes the events channel. Idempotent.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
