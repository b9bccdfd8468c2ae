package matchmaking

import "github.com/cory-johannsen/duelhub/internal/game/session"

// Queue is the FIFO waiting list of connections seeking an opponent.
// It never holds the same id twice. Queue is not safe for concurrent use;
// it is owned by the Engine.
type Queue struct {
	ids     []session.ConnectionID
	members map[session.ConnectionID]struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{members: make(map[session.ConnectionID]struct{})}
}

// Enqueue appends id to the tail.
//
// Postcondition: Returns false and leaves the queue unchanged if id is already waiting.
func (q *Queue) Enqueue(id session.ConnectionID) bool {
	if _, ok := q.members[id]; ok {
		return false
	}
	q.ids = append(q.ids, id)
	q.members[id] = struct{}{}
	return true
}

// DequeueOldest removes and returns the head of the queue.
//
// Postcondition: Returns ("", false) when the queue is empty.
func (q *Queue) DequeueOldest() (session.ConnectionID, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids[0] = ""
	q.ids = q.ids[1:]
	delete(q.members, id)
	return id, true
}

// Remove deletes id wherever it sits in the queue. Removing an absent id is a no-op.
//
// Postcondition: Returns true if id was waiting.
func (q *Queue) Remove(id session.ConnectionID) bool {
	if _, ok := q.members[id]; !ok {
		return false
	}
	delete(q.members, id)
	for i, queued := range q.ids {
		if queued == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether id is waiting.
func (q *Queue) Contains(id session.ConnectionID) bool {
	_, ok := q.members[id]
	return ok
}

// Len returns the number of waiting ids.
func (q *Queue) Len() int {
	return len(q.ids)
}

// Snapshot returns the waiting ids, oldest first.
func (q *Queue) Snapshot() []session.ConnectionID {
	out := make([]session.ConnectionID, len(q.ids))
	copy(out, q.ids)
	return out
}
