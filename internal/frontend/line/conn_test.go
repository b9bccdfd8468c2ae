package line

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return NewConn(server, time.Second, time.Second), client
}

func TestConn_ReadLineTerminators(t *testing.T) {
	conn, client := pipeConn(t)
	go func() { _, _ = client.Write([]byte("one\r\ntwo\nthr\x07ee\r\n")) }()

	for _, want := range []string{"one", "two", "three"} {
		got, err := conn.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestConn_ReadLineTooLong(t *testing.T) {
	conn, client := pipeConn(t)
	go func() { _, _ = client.Write([]byte(strings.Repeat("x", MaxLineBytes+1) + "\n")) }()

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestConn_ReadEnvelopeSkipsBlankLines(t *testing.T) {
	conn, client := pipeConn(t)
	go func() { _, _ = client.Write([]byte("\r\n   \n{\"event\":\"attack\",\"data\":{\"room\":\"r\"}}\n")) }()

	env, err := conn.ReadEnvelope()
	require.NoError(t, err)
	assert.Equal(t, "attack", env.Event)
	assert.JSONEq(t, `{"room":"r"}`, string(env.Data))
}

func TestConn_ReadEnvelopeDecodeError(t *testing.T) {
	conn, client := pipeConn(t)
	go func() { _, _ = client.Write([]byte("not json\n")) }()

	_, err := conn.ReadEnvelope()
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "not json", decodeErr.Line)
}

func TestConn_WriteEnvelope(t *testing.T) {
	conn, client := pipeConn(t)
	env, err := session.NewEnvelope("game-start", map[string]string{"room": "room-a-b"})
	require.NoError(t, err)

	go func() { _ = conn.WriteEnvelope(env) }()

	buf := make([]byte, 256)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"game-start","data":{"room":"room-a-b"}}`+"\n", string(buf[:n]))
}

func TestConn_Property_ReadLineRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[ -~]{0,200}`).Draw(rt, "text")
		server, client := net.Pipe()
		defer server.Close()
		defer client.Close()
		conn := NewConn(server, time.Second, time.Second)

		go func() { _, _ = client.Write([]byte(text + "\r\n")) }()

		got, err := conn.ReadLine()
		if err != nil {
			rt.Fatalf("reading %q: %v", text, err)
		}
		if got != text {
			rt.Fatalf("got %q, want %q", got, text)
		}
	})
}
