// Package matchmaking pairs waiting connections into two-player rooms, settles
// who moves first, and relays gameplay events between the two members of a room.
package matchmaking

import (
	"encoding/json"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// Registry is the view of the connection registry the Engine needs: liveness
// lookups and non-blocking delivery.
type Registry interface {
	IsLive(id session.ConnectionID) bool
	Push(id session.ConnectionID, env session.Envelope) error
}

// Snapshot is a point-in-time copy of the Engine's queue and room table.
type Snapshot struct {
	// Waiting lists queued ids, oldest first.
	Waiting []session.ConnectionID
	// Rooms lists active rooms ordered by label.
	Rooms []Room
}

// Engine holds the waiting queue and the room table and applies the pairing,
// relay, and teardown rules to them. Engine is not safe for concurrent use;
// Service serializes every call onto a single goroutine.
type Engine struct {
	registry   Registry
	resolver   *Resolver
	queue      *Queue
	rooms      map[string]*Room
	membership map[session.ConnectionID]string
	logger     *zap.Logger
}

// NewEngine creates an Engine with an empty queue and room table.
//
// Precondition: registry, resolver, and logger must be non-nil.
func NewEngine(registry Registry, resolver *Resolver, logger *zap.Logger) *Engine {
	return &Engine{
		registry:   registry,
		resolver:   resolver,
		queue:      NewQueue(),
		rooms:      make(map[string]*Room),
		membership: make(map[session.ConnectionID]string),
		logger:     logger,
	}
}

// Connect handles a newly registered connection. The oldest waiting id is
// popped; if it is still live the two are paired, otherwise it is discarded
// and c waits in its place. Only one waiting id is tried per arrival.
//
// Postcondition: Returns the formed room and true when c was paired, or
// (Room{}, false) when c was queued or ignored.
func (e *Engine) Connect(c session.ConnectionID) (Room, bool) {
	if !e.registry.IsLive(c) {
		e.logger.Debug("connect for closed connection ignored", zap.String("conn", string(c)))
		return Room{}, false
	}
	if e.queue.Contains(c) {
		e.logger.Warn("connection already waiting", zap.String("conn", string(c)))
		return Room{}, false
	}
	if label, ok := e.membership[c]; ok {
		e.logger.Warn("connection already paired",
			zap.String("conn", string(c)),
			zap.String("room", label),
		)
		return Room{}, false
	}

	opponent, ok := e.queue.DequeueOldest()
	if !ok {
		e.queue.Enqueue(c)
		e.logger.Info("connection waiting for opponent",
			zap.String("conn", string(c)),
			zap.Int("waiting", e.queue.Len()),
		)
		return Room{}, false
	}

	if !e.registry.IsLive(opponent) {
		e.queue.Enqueue(c)
		e.logger.Info("discarded stale opponent",
			zap.String("stale", string(opponent)),
			zap.String("conn", string(c)),
			zap.Int("waiting", e.queue.Len()),
		)
		return Room{}, false
	}

	members := [2]session.ConnectionID{opponent, c}
	order := e.resolver.Resolve(members)
	room := &Room{
		Label:          RoomLabel(opponent, c),
		Members:        members,
		StartingPlayer: members[order.StartingIndex],
	}
	e.rooms[room.Label] = room
	e.membership[opponent] = room.Label
	e.membership[c] = room.Label

	e.logger.Info("room formed",
		zap.String("room", room.Label),
		zap.Ints("rolls", order.Rolls[:]),
		zap.String("starting_player", string(room.StartingPlayer)),
	)

	env, err := session.NewEnvelope(EventGameStart, GameStart{
		Room:             room.Label,
		Players:          room.Members,
		StartingPlayerID: room.StartingPlayer,
	})
	if err != nil {
		e.logger.Error("encoding game-start", zap.Error(err))
		return *room, true
	}
	e.send(opponent, env)
	e.send(c, env)
	return *room, true
}

// Disconnect removes id from the queue, or tears down its room. The surviving
// member is told its opponent left but is not re-queued.
func (e *Engine) Disconnect(id session.ConnectionID) {
	if e.queue.Remove(id) {
		e.logger.Info("waiting connection left",
			zap.String("conn", string(id)),
			zap.Int("waiting", e.queue.Len()),
		)
		return
	}

	label, ok := e.membership[id]
	if !ok {
		e.logger.Debug("disconnect for unknown connection", zap.String("conn", string(id)))
		return
	}
	room := e.rooms[label]
	delete(e.rooms, label)
	delete(e.membership, room.Members[0])
	delete(e.membership, room.Members[1])

	survivor, _ := room.Other(id)
	e.logger.Info("room torn down",
		zap.String("room", label),
		zap.String("left", string(id)),
		zap.String("survivor", string(survivor)),
	)

	env, err := session.NewEnvelope(EventOpponentDisconnected, OpponentDisconnected{Room: label})
	if err != nil {
		e.logger.Error("encoding opponent-disconnected", zap.Error(err))
		return
	}
	e.send(survivor, env)
}

// Relay forwards payload from sender to the other member of roomLabel under
// the outbound name of event. Unknown events, missing room references, torn
// down rooms, and senders outside the room are logged and dropped.
//
// Postcondition: Returns true iff the payload was handed to the other member's outbox.
func (e *Engine) Relay(sender session.ConnectionID, roomLabel, event string, payload json.RawMessage) bool {
	outbound, known := relayedAs[event]
	if !known {
		e.logger.Warn("dropping unknown event",
			zap.String("conn", string(sender)),
			zap.String("event", event),
		)
		return false
	}
	if roomLabel == "" {
		e.logger.Warn("dropping malformed event: no room reference",
			zap.String("conn", string(sender)),
			zap.String("event", event),
		)
		return false
	}
	room, ok := e.rooms[roomLabel]
	if !ok {
		e.logger.Info("dropping event for missing room",
			zap.String("conn", string(sender)),
			zap.String("event", event),
			zap.String("room", roomLabel),
		)
		return false
	}
	target, ok := room.Other(sender)
	if !ok {
		e.logger.Warn("dropping event from non-member",
			zap.String("conn", string(sender)),
			zap.String("event", event),
			zap.String("room", roomLabel),
		)
		return false
	}
	return e.send(target, session.Envelope{Event: outbound, Data: payload})
}

// RoomOf returns the room id currently belongs to.
func (e *Engine) RoomOf(id session.ConnectionID) (Room, bool) {
	label, ok := e.membership[id]
	if !ok {
		return Room{}, false
	}
	return *e.rooms[label], true
}

// Snapshot copies the queue and room table.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Waiting: e.queue.Snapshot(),
		Rooms:   make([]Room, 0, len(e.rooms)),
	}
	for _, r := range e.rooms {
		snap.Rooms = append(snap.Rooms, *r)
	}
	sort.Slice(snap.Rooms, func(i, j int) bool { return snap.Rooms[i].Label < snap.Rooms[j].Label })
	return snap
}

func (e *Engine) send(id session.ConnectionID, env session.Envelope) bool {
	if err := e.registry.Push(id, env); err != nil {
		level := zap.WarnLevel
		if errors.Is(err, session.ErrNotLive) || errors.Is(err, session.ErrOutboxClosed) {
			level = zap.DebugLevel
		}
		e.logger.Check(level, "dropping outbound event").Write(
			zap.String("conn", string(id)),
			zap.String("event", env.Event),
			zap.Error(err),
		)
		return false
	}
	return true
}

// parseGameplay extracts the room reference and the payload to relay from an
// inbound gameplay body. play-card relays only its card; attack relays the
// whole body. A body that is not a JSON object yields an empty room.
func parseGameplay(event string, data json.RawMessage) (string, json.RawMessage) {
	var body inboundGameplay
	if err := json.Unmarshal(data, &body); err != nil {
		return "", nil
	}
	if event == EventPlayCard {
		card := body.Card
		if card == nil {
			card = json.RawMessage("null")
		}
		return body.Room, card
	}
	return body.Room, data
}
