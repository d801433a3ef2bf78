// Package transport provides the bidirectional message channel used by an
// edit session.
//
// A Channel wraps one WebSocket connection. Inbound frames are read by a
// single goroutine into a single-consumer queue and handed out by Receive in
// arrival order; at most one Receive may wait at a time. Writes go straight
// to the connection in call order.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds the opening handshake when the dialer does
// not set its own.
const DefaultHandshakeTimeout = 10 * time.Second

// DefaultReadLimit caps a single inbound message. Server replies are small
// JSON control frames.
const DefaultReadLimit int64 = 1 << 20

// Conn is the subset of a WebSocket connection the channel needs.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	NextWriter(messageType int) (io.WriteCloser, error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

// Dial calls f(ctx, addr).
func (f DialerFunc) Dial(ctx context.Context, addr string) (Conn, error) {
	return f(ctx, addr)
}

// WebsocketDialer dials WebSocket endpoints with gorilla/websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the opening handshake.
	// Zero uses DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	// ReadLimit caps a single inbound message. Zero uses DefaultReadLimit.
	ReadLimit int64
	// Header is sent with the handshake request.
	Header http.Header
}

// Dial opens a WebSocket connection to addr (ws:// or wss://).
func (d WebsocketDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	conn, resp, err := dialer.DialContext(ctx, addr, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		dialErr := &DialError{Addr: addr, Err: err}
		if resp != nil {
			dialErr.StatusCode = resp.StatusCode
		}
		return nil, dialErr
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)
	return conn, nil
}
