package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConnectionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := string(NewConnectionID())
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGreeting(t *testing.T) {
	env := Greeting("abc")
	assert.Equal(t, EventConnected, env.Event)
	assert.JSONEq(t, `{"id":"abc"}`, string(env.Data))
}
