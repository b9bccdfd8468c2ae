// Package dice provides the randomness abstraction used to settle turn order.
package dice

import (
	"fmt"
	"sync"
)

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// SequenceSource replays a fixed sequence of values, wrapping around when
// exhausted. Values are clamped into [0, n).
type SequenceSource struct {
	mu   sync.Mutex
	vals []int
	next int
}

// NewSequenceSource returns a Source that yields vals in order.
//
// Precondition: len(vals) > 0.
func NewSequenceSource(vals ...int) *SequenceSource {
	if len(vals) == 0 {
		panic("dice: NewSequenceSource requires at least one value")
	}
	return &SequenceSource{vals: append([]int(nil), vals...)}
}

// Intn returns the next value of the sequence clamped into [0, n).
func (s *SequenceSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("dice: Intn called with n=%d", n))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.vals[s.next%len(s.vals)]
	s.next++
	switch {
	case v < 0:
		return 0
	case v >= n:
		return n - 1
	}
	return v
}

// Draws reports how many values have been consumed.
func (s *SequenceSource) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
