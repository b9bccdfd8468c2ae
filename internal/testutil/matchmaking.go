package testutil

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/duelhub/internal/game/dice"
	"github.com/cory-johannsen/duelhub/internal/game/matchmaking"
	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// NewMatchmaking starts a matchmaking service whose turn-order dice replay
// rolls, and stops it when the test ends. With no rolls the first connection
// of every pair starts.
//
// Postcondition: The returned Service is running, or the test has failed.
func NewMatchmaking(t *testing.T, rolls ...int) *matchmaking.Service {
	t.Helper()
	if len(rolls) == 0 {
		rolls = []int{5, 0}
	}
	logger := zaptest.NewLogger(t)
	resolver := matchmaking.NewResolver(dice.NewLoggedRoller(dice.NewSequenceSource(rolls...), logger))
	svc := matchmaking.NewService(session.NewRegistry(64), resolver, 64, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start() }()
	t.Cleanup(func() {
		svc.Stop()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("matchmaking loop: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("matchmaking loop did not stop in time")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for !svc.Running() {
		if time.Now().After(deadline) {
			t.Fatal("matchmaking loop did not start in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return svc
}
