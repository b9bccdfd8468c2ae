package matchmaking

import (
	"github.com/cory-johannsen/duelhub/internal/game/dice"
	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// dieSides gives each roll six-sided-die semantics, faces 0 through 5.
const dieSides = 6

// TurnOrder records the rolls behind a starting-player decision.
type TurnOrder struct {
	// Rolls holds one face per member, in room-member order.
	Rolls [2]int
	// StartingIndex is 0 or 1, indexing Room.Members.
	StartingIndex int
}

// Resolver decides which room member takes the first turn.
type Resolver struct {
	roller *dice.Roller
}

// NewResolver creates a Resolver drawing from roller.
//
// Precondition: roller must be non-nil.
func NewResolver(roller *dice.Roller) *Resolver {
	return &Resolver{roller: roller}
}

// Resolve rolls one die per member, opponent first. The higher roll starts;
// a tie goes to the opponent, who was waiting longer.
//
// Postcondition: StartingIndex == 0 iff Rolls[0] >= Rolls[1].
func (r *Resolver) Resolve(members [2]session.ConnectionID) TurnOrder {
	var order TurnOrder
	order.Rolls[0] = r.roller.Face(dieSides, "turn-order:"+string(members[0]))
	order.Rolls[1] = r.roller.Face(dieSides, "turn-order:"+string(members[1]))
	if order.Rolls[0] < order.Rolls[1] {
		order.StartingIndex = 1
	}
	return order
}
