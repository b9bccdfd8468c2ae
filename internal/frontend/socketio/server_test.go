package socketio

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gosocketio "github.com/googollee/go-socket.io"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/duelhub/internal/game/matchmaking"
	"github.com/cory-johannsen/duelhub/internal/testutil"
)

type emitted struct {
	event string
	data  json.RawMessage
}

// fakeConn records emits; the embedded interface panics on anything else.
type fakeConn struct {
	gosocketio.Conn
	id string

	mu     sync.Mutex
	events []emitted
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func (c *fakeConn) Emit(event string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var data json.RawMessage
	if len(v) > 0 {
		data, _ = v[0].(json.RawMessage)
	}
	c.events = append(c.events, emitted{event: event, data: data})
}

func (c *fakeConn) wait(t *testing.T, event string) json.RawMessage {
	t.Helper()
	var got json.RawMessage
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, e := range c.events {
			if e.event == event {
				got = e.data
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s emitted to %s", event, c.id)
	return got
}

func TestServer_PairRelayAndDisconnect(t *testing.T) {
	svc := testutil.NewMatchmaking(t)
	srv := NewServer(svc, zaptest.NewLogger(t))

	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	require.NoError(t, srv.onConnect(a))
	require.NoError(t, srv.onConnect(b))

	var start matchmaking.GameStart
	require.NoError(t, json.Unmarshal(a.wait(t, matchmaking.EventGameStart), &start))
	assert.Equal(t, "room-a-b", start.Room)
	b.wait(t, matchmaking.EventGameStart)

	play := srv.eventHandler(matchmaking.EventPlayCard)
	play(a, json.RawMessage(`{"room":"room-a-b","card":{"name":"Imp"}}`))
	assert.JSONEq(t, `{"name":"Imp"}`, string(b.wait(t, matchmaking.EventOpponentPlayedCard)))

	attack := srv.eventHandler(matchmaking.EventAttack)
	attack(b, json.RawMessage(`{"room":"room-a-b","damage":3}`))
	assert.JSONEq(t, `{"room":"room-a-b","damage":3}`, string(a.wait(t, matchmaking.EventOpponentAttack)))

	srv.onDisconnect(a, "client namespace disconnect")
	assert.JSONEq(t, `{"room":"room-a-b"}`, string(b.wait(t, matchmaking.EventOpponentDisconnected)))

	srv.mu.Lock()
	assert.NotContains(t, srv.pumps, "a")
	srv.mu.Unlock()
}

func TestServer_DuplicateConnectRejected(t *testing.T) {
	svc := testutil.NewMatchmaking(t)
	srv := NewServer(svc, zaptest.NewLogger(t))

	require.NoError(t, srv.onConnect(&fakeConn{id: "dup"}))
	assert.Error(t, srv.onConnect(&fakeConn{id: "dup"}))
}

func TestServer_DisconnectUnknownIsHarmless(t *testing.T) {
	svc := testutil.NewMatchmaking(t)
	srv := NewServer(svc, zaptest.NewLogger(t))

	srv.onDisconnect(&fakeConn{id: "ghost"}, "transport close")
	srv.onError(nil, assert.AnError)
}

func TestServer_PollingHandshake(t *testing.T) {
	svc := testutil.NewMatchmaking(t)
	srv := NewServer(svc, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("socket.io server did not stop in time")
		}
	})

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/socket.io/?EIO=3&transport=polling")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func startWireServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := testutil.NewMatchmaking(t)
	srv := NewServer(svc, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("socket.io server did not stop in time")
		}
	})
	return ts
}

func dialWire(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket.io/?EIO=3&transport=websocket"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readEventFrame returns the raw text of the next "42" event frame named event,
// skipping engine.io open/ping and namespace connect frames.
func readEventFrame(t *testing.T, ws *websocket.Conn, event string) string {
	t.Helper()
	prefix := `42["` + event + `"`
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		if strings.HasPrefix(string(msg), prefix) {
			return string(msg)
		}
	}
}

func TestServer_WireRelayKeepsPayloadBytes(t *testing.T) {
	ts := startWireServer(t)
	a := dialWire(t, ts)
	b := dialWire(t, ts)

	startFrame := readEventFrame(t, a, matchmaking.EventGameStart)
	readEventFrame(t, b, matchmaking.EventGameStart)

	var args []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(startFrame, "42")), &args))
	require.Len(t, args, 2)
	var start matchmaking.GameStart
	require.NoError(t, json.Unmarshal(args[1], &start))

	card := `{"id":9007199254740993,"z":1,"a":2}`
	out := `42["play-card",{"room":"` + start.Room + `","card":` + card + `}]`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(out)))

	got := readEventFrame(t, b, matchmaking.EventOpponentPlayedCard)
	assert.Equal(t, `42["opponent-played-card",`+card+`]`, got)

	attack := `{"room":"` + start.Room + `","weight":1.50,"dmg":12345678901234567890}`
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(`42["attack",`+attack+`]`)))
	assert.Equal(t, `42["opponent-attack",`+attack+`]`, readEventFrame(t, a, matchmaking.EventOpponentAttack))
}
