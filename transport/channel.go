package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// closeGrace bounds the best-effort close frame written by Close.
const closeGrace = time.Second

// inboxSize is the number of frames the reader may queue ahead of Receive.
const inboxSize = 8

// FrameKind distinguishes text and binary frames.
type FrameKind int

const (
	// FrameText is a UTF-8 text frame.
	FrameText FrameKind = websocket.TextMessage
	// FrameBinary is a binary frame.
	FrameBinary FrameKind = websocket.BinaryMessage
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return fmt.Sprintf("frame(%d)", int(k))
	}
}

// Frame is one inbound message.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Channel is an open bidirectional message channel. It is owned by exactly
// one session and closed exactly once by that owner.
type Channel struct {
	conn Conn

	inbox  chan Frame
	done   chan struct{} // closed when the reader goroutine exits
	closed chan struct{} // closed by Close

	readErr   error // valid once done is closed
	receiving atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Open dials addr and returns a ready channel.
// Dial failures are returned as *DialError.
func Open(ctx context.Context, dialer Dialer, addr string) (*Channel, error) {
	conn, err := dialer.Dial(ctx, addr)
	if err != nil {
		var dialErr *DialError
		if errors.As(err, &dialErr) {
			return nil, err
		}
		return nil, &DialError{Addr: addr, Err: err}
	}
	return newChannel(conn), nil
}

func newChannel(conn Conn) *Channel {
	c := &Channel{
		conn:   conn,
		inbox:  make(chan Frame, inboxSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.done)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = classifyReadErr(err)
			return
		}
		select {
		case c.inbox <- Frame{Kind: FrameKind(kind), Data: data}:
		case <-c.closed:
			c.readErr = ErrChannelClosed
			return
		}
	}
}

func classifyReadErr(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("%w (code %d)", ErrClosedAbruptly, closeErr.Code)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClosedAbruptly
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrChannelClosed
	}
	return fmt.Errorf("transport: read: %w", err)
}

// Receive returns the next inbound frame in arrival order.
//
// Only one Receive may wait at a time; a concurrent call fails immediately
// with ErrReceiveInProgress. Receive fails with ErrClosedAbruptly when the
// peer closes first, ErrChannelClosed after Close, and ctx.Err() when the
// context ends. Frames queued before the peer closed are still delivered.
func (c *Channel) Receive(ctx context.Context) (Frame, error) {
	if !c.receiving.CompareAndSwap(false, true) {
		return Frame{}, ErrReceiveInProgress
	}
	defer c.receiving.Store(false)

	if c.isClosed() {
		return Frame{}, ErrChannelClosed
	}

	select {
	case f := <-c.inbox:
		return f, nil
	case <-c.done:
		if c.isClosed() {
			return Frame{}, ErrChannelClosed
		}
		// The reader queues before it exits; drain what arrived first.
		select {
		case f := <-c.inbox:
			return f, nil
		default:
		}
		return Frame{}, c.readErr
	case <-c.closed:
		return Frame{}, ErrChannelClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// SendText writes one text frame.
func (c *Channel) SendText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrChannelClosed
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write text: %w", err)
	}
	return nil
}

// SendBinary streams r into one binary frame and returns the number of
// bytes written.
func (c *Channel) SendBinary(r io.Reader) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return 0, ErrChannelClosed
	}
	w, err := c.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return 0, fmt.Errorf("transport: write binary: %w", err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return n, fmt.Errorf("transport: write binary: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("transport: write binary: %w", err)
	}
	return n, nil
}

// Close sends a normal close frame best-effort, closes the connection and
// waits for the reader goroutine to exit. Safe to call more than once and
// from any goroutine; only the first call has an effect.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.conn.Close()
		<-c.done
	})
	return c.closeErr
}

func (c *Channel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
