package matchmaking

import (
	"encoding/json"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// Inbound event names sent by clients.
const (
	EventPlayCard = "play-card"
	EventAttack   = "attack"
)

// Outbound event names sent to clients.
const (
	EventGameStart            = "game-start"
	EventOpponentPlayedCard   = "opponent-played-card"
	EventOpponentAttack       = "opponent-attack"
	EventOpponentDisconnected = "opponent-disconnected"
)

// relayedAs maps an inbound gameplay event to the name its recipient sees.
var relayedAs = map[string]string{
	EventPlayCard: EventOpponentPlayedCard,
	EventAttack:   EventOpponentAttack,
}

// GameStart is sent to both members when a room forms.
type GameStart struct {
	Room             string                  `json:"room"`
	Players          [2]session.ConnectionID `json:"players"`
	StartingPlayerID session.ConnectionID    `json:"startingPlayerId"`
}

// OpponentDisconnected tells the surviving member its room was torn down.
type OpponentDisconnected struct {
	Room string `json:"room"`
}

// inboundGameplay is the shape shared by play-card and attack bodies. Only the
// room reference is interpreted; everything else passes through untouched.
type inboundGameplay struct {
	Room string          `json:"room"`
	Card json.RawMessage `json:"card"`
}
