package testutil

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// LineClient speaks the JSON-lines protocol for integration testing.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewLineClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected LineClient or fails the test.
func NewLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("line client connected to %s [%s]", addr, time.Since(start))
	return &LineClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// Read returns the next envelope, failing the test on timeout or bad JSON.
func (c *LineClient) Read(timeout time.Duration) session.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("reading envelope: got %q, error: %v", line, err)
	}
	var env session.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.t.Fatalf("decoding %q: %v", line, err)
	}
	return env
}

// Expect reads envelopes until one named event arrives, discarding the rest.
//
// Postcondition: Returns the matching envelope, or fails on timeout.
func (c *LineClient) Expect(event string, timeout time.Duration) session.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %q", event)
		}
		env := c.Read(remaining)
		if env.Event == event {
			return env
		}
	}
}

// Send writes one envelope as a line terminated by \r\n.
func (c *LineClient) Send(event string, data any) {
	c.t.Helper()
	env, err := session.NewEnvelope(event, data)
	if err != nil {
		c.t.Fatalf("encoding %q: %v", event, err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.t.Fatalf("encoding %q: %v", event, err)
	}
	c.SendRaw(string(raw))
}

// SendRaw writes text followed by \r\n without interpreting it.
func (c *LineClient) SendRaw(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte(text + "\r\n")); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the underlying connection.
func (c *LineClient) Close() {
	c.conn.Close()
}
