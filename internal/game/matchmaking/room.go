package matchmaking

import (
	"fmt"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// Room binds exactly two paired connections. Members[0] is the opponent that
// was waiting in the queue, Members[1] the newcomer that triggered the pairing.
type Room struct {
	Label          string
	Members        [2]session.ConnectionID
	StartingPlayer session.ConnectionID
}

// RoomLabel derives the room label from its two members.
// Connection ids are unique, so the label is unique per active pairing.
func RoomLabel(opponent, newcomer session.ConnectionID) string {
	return fmt.Sprintf("room-%s-%s", opponent, newcomer)
}

// Has reports whether id is a member of the room.
func (r Room) Has(id session.ConnectionID) bool {
	return r.Members[0] == id || r.Members[1] == id
}

// Other returns the member that is not id.
//
// Postcondition: Returns ("", false) if id is not a member.
func (r Room) Other(id session.ConnectionID) (session.ConnectionID, bool) {
	switch id {
	case r.Members[0]:
		return r.Members[1], true
	case r.Members[1]:
		return r.Members[0], true
	}
	return "", false
}
