// Package line implements a raw TCP transport that frames each event as one
// line of JSON: {"event": "...", "data": ...}.
package line

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cory-johannsen/duelhub/internal/game/session"
)

// MaxLineBytes caps a single inbound line.
const MaxLineBytes = 64 << 10

// ErrLineTooLong is returned when a client sends more than MaxLineBytes without a newline.
var ErrLineTooLong = errors.New("line too long")

// Conn wraps a TCP connection with newline framing. Reads happen on one
// goroutine; writes are serialized by a mutex so the writer pump and any
// direct writes never interleave.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadLine reads a single line of input. Both \n and \r\n end a line; other
// control characters except tab are discarded.
//
// Postcondition: Returns the next line without its terminator, or an error (including io.EOF).
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	var line bytes.Buffer
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return line.String(), err
		}

		if b == '\n' {
			break
		}
		if b == '\r' {
			next, err := c.reader.Peek(1)
			if err == nil && len(next) > 0 && next[0] == '\n' {
				_, _ = c.reader.ReadByte()
			}
			break
		}
		if b < 32 && b != '\t' {
			continue
		}
		if line.Len() >= MaxLineBytes {
			return "", ErrLineTooLong
		}
		line.WriteByte(b)
	}

	return line.String(), nil
}

// ReadEnvelope reads the next non-blank line and decodes it as an Envelope.
//
// Postcondition: Returns the decoded Envelope, a decode error wrapping the
// offending line, or a read error.
func (c *Conn) ReadEnvelope() (session.Envelope, error) {
	for {
		line, err := c.ReadLine()
		if err != nil {
			return session.Envelope{}, err
		}
		if len(bytes.TrimSpace([]byte(line))) == 0 {
			continue
		}
		var env session.Envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			return session.Envelope{}, &DecodeError{Line: line, Err: err}
		}
		return env, nil
	}
}

// DecodeError reports an inbound line that is not a JSON envelope. The
// connection remains usable.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding line %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteEnvelope encodes env as one JSON line terminated by \n.
//
// Postcondition: The encoded line is written to the connection, or an error is returned.
func (c *Conn) WriteEnvelope(env session.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", env.Event, err)
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err = c.raw.Write(data)
	return err
}

// Close closes the underlying TCP connection.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
