// Package frontend holds what every client transport shares: the matchmaking
// surface they drive and the helpers for minting connection ids.
package frontend

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// EventConnected greets WebSocket and line clients with their connection id.
const EventConnected = "connected"

// DisconnectTimeout bounds how long a transport waits to report a disconnect
// to a congested matchmaking loop before the matchmaker takes over delivery.
const DisconnectTimeout = 5 * time.Second

// Matchmaker is the part of matchmaking.Service a transport drives.
type Matchmaker interface {
	Connect(ctx context.Context, id session.ConnectionID) (*session.Outbox, error)
	Disconnect(ctx context.Context, id session.ConnectionID) error
	Dispatch(ctx context.Context, sender session.ConnectionID, env session.Envelope) error
}

// NewConnectionID mints a fresh opaque connection id.
func NewConnectionID() session.ConnectionID {
	return session.ConnectionID(uuid.NewString())
}

// Greeting builds the "connected" envelope announcing id to its client.
func Greeting(id session.ConnectionID) session.Envelope {
	env, _ := session.NewEnvelope(EventConnected, struct {
		ID session.ConnectionID `json:"id"`
	}{ID: id})
	return env
}

// Leave reports id's disconnect on a fresh context, since the connection's
// own context is usually already cancelled by the time it closes.
func Leave(m Matchmaker, id session.ConnectionID) error {
	ctx, cancel := context.WithTimeout(context.Background(), DisconnectTimeout)
	defer cancel()
	return m.Disconnect(ctx, id)
}
