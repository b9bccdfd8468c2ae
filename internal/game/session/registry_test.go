package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestOutbox_Push(t *testing.T) {
	o := NewOutbox("c1", 4)
	require.NoError(t, o.Push(Envelope{Event: "hello"}))

	env := <-o.Events()
	assert.Equal(t, "hello", env.Event)
}

func TestOutbox_PushClosed(t *testing.T) {
	o := NewOutbox("c1", 4)
	o.Close()
	assert.True(t, o.IsClosed())
	assert.ErrorIs(t, o.Push(Envelope{Event: "x"}), ErrOutboxClosed)
}

func TestOutbox_PushFull(t *testing.T) {
	o := NewOutbox("c1", 1)
	require.NoError(t, o.Push(Envelope{Event: "first"}))
	assert.ErrorIs(t, o.Push(Envelope{Event: "overflow"}), ErrOutboxFull)
}

func TestOutbox_CloseIdempotent(t *testing.T) {
	o := NewOutbox("c1", 4)
	o.Close()
	o.Close()
	assert.True(t, o.IsClosed())
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("game-start", map[string]string{"room": "r"})
	require.NoError(t, err)
	assert.Equal(t, "game-start", env.Event)
	assert.JSONEq(t, `{"room":"r"}`, string(env.Data))

	_, err = NewEnvelope("bad", make(chan int))
	assert.Error(t, err)
}

func TestRegistry_RegisterAndDeregister(t *testing.T) {
	r := NewRegistry(8)
	out, err := r.Register("c1")
	require.NoError(t, err)
	assert.Equal(t, ConnectionID("c1"), out.ID())
	assert.True(t, r.IsLive("c1"))
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.Deregister("c1"))
	assert.False(t, r.IsLive("c1"))
	assert.True(t, out.IsClosed())
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_DoubleDeregisterIsNoop(t *testing.T) {
	r := NewRegistry(8)
	_, err := r.Register("c1")
	require.NoError(t, err)
	assert.True(t, r.Deregister("c1"))
	assert.False(t, r.Deregister("c1"))
	assert.False(t, r.Deregister("never-seen"))
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(8)
	_, err := r.Register("c1")
	require.NoError(t, err)
	_, err = r.Register("c1")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistry_RegisterEmpty(t *testing.T) {
	r := NewRegistry(8)
	_, err := r.Register("")
	assert.Error(t, err)
}

func TestRegistry_Push(t *testing.T) {
	r := NewRegistry(8)
	out, err := r.Register("c1")
	require.NoError(t, err)

	require.NoError(t, r.Push("c1", Envelope{Event: "ping"}))
	assert.Equal(t, "ping", (<-out.Events()).Event)

	assert.ErrorIs(t, r.Push("ghost", Envelope{Event: "ping"}), ErrNotLive)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ConnectionID(fmt.Sprintf("c%d", i))
			_, err := r.Register(id)
			assert.NoError(t, err)
			assert.True(t, r.IsLive(id))
			_ = r.Push(id, Envelope{Event: "x"})
			r.Deregister(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
}

// Property: after any sequence of register/deregister calls, IsLive matches a
// reference set and Count equals its size.
func TestRegistry_Property_MatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRegistry(4)
		model := make(map[ConnectionID]bool)
		ops := rapid.SliceOfN(rapid.IntRange(0, 9), 1, 60).Draw(rt, "ids")
		for i, n := range ops {
			id := ConnectionID(fmt.Sprintf("c%d", n))
			if i%3 == 2 || model[id] {
				r.Deregister(id)
				delete(model, id)
				continue
			}
			_, err := r.Register(id)
			if err != nil {
				rt.Fatalf("register %s: %v", id, err)
			}
			model[id] = true
		}
		if r.Count() != len(model) {
			rt.Fatalf("count %d, model %d", r.Count(), len(model))
		}
		for n := 0; n < 10; n++ {
			id := ConnectionID(fmt.Sprintf("c%d", n))
			if r.IsLive(id) != model[id] {
				rt.Fatalf("IsLive(%s) = %v, model %v", id, r.IsLive(id), model[id])
			}
		}
	})
}
