package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/overdub/iox"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// startServer runs script against every upgraded connection and returns the
// ws:// address of the server.
func startServer(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// drain reads until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func open(t *testing.T, addr string) *Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := Open(ctx, WebsocketDialer{}, addr)
	require.NoError(t, err)
	t.Cleanup(iox.CloseFunc(ch))
	return ch
}

func receive(t *testing.T, ch *Channel) (Frame, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ch.Receive(ctx)
}

func TestOpen_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ch, err := Open(context.Background(), WebsocketDialer{HandshakeTimeout: time.Second}, addr)
	require.Error(t, err)
	assert.Nil(t, ch)

	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, addr, dialErr.Addr)
	assert.True(t, IsDialError(err))
}

func TestOpen_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := Open(context.Background(), WebsocketDialer{}, addr)

	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, http.StatusNotFound, dialErr.StatusCode)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func TestOpen_WrapsPlainDialerErrors(t *testing.T) {
	cause := errors.New("no route")
	dialer := DialerFunc(func(context.Context, string) (Conn, error) { return nil, cause })

	_, err := Open(context.Background(), dialer, "ws://example.invalid/api/edit")

	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ws://example.invalid/api/edit", dialErr.Addr)
}

func TestChannel_TextEcho(t *testing.T) {
	addr := startServer(t, func(conn *websocket.Conn) {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(kind, data)
		drain(conn)
	})
	ch := open(t, addr)

	require.NoError(t, ch.SendText([]byte(`{"hello":"world"}`)))

	f, err := receive(t, ch)
	require.NoError(t, err)
	assert.Equal(t, FrameText, f.Kind)
	assert.Equal(t, `{"hello":"world"}`, string(f.Data))
}

func TestChannel_SendBinaryIsOneMessage(t *testing.T) {
	payload := bytes.Repeat([]byte("overdub!"), 64*1024) // 512 KiB
	got := make(chan []byte, 1)

	addr := startServer(t, func(conn *websocket.Conn) {
		conn.SetReadLimit(-1)
		kind, data, err := conn.ReadMessage()
		if err != nil || kind != websocket.BinaryMessage {
			got <- nil
			return
		}
		got <- data
		drain(conn)
	})
	ch := open(t, addr)

	n, err := ch.SendBinary(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	select {
	case data := <-got:
		assert.Equal(t, payload, data)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive the payload")
	}
}

func TestChannel_SendBinaryEmpty(t *testing.T) {
	got := make(chan int, 1)
	addr := startServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			got <- -1
			return
		}
		got <- len(data)
		drain(conn)
	})
	ch := open(t, addr)

	n, err := ch.SendBinary(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, <-got)
}

func TestChannel_ArrivalOrder(t *testing.T) {
	addr := startServer(t, func(conn *websocket.Conn) {
		for _, msg := range []string{"one", "two", "three"} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		drain(conn)
	})
	ch := open(t, addr)

	for _, want := range []string{"one", "two", "three"} {
		f, err := receive(t, ch)
		require.NoError(t, err)
		assert.Equal(t, want, string(f.Data))
	}
}

func TestChannel_PeerDropsConnection(t *testing.T) {
	addr := startServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"ok"}`))
		_ = conn.NetConn().Close()
	})
	ch := open(t, addr)

	f, err := receive(t, ch)
	require.NoError(t, err, "frames sent before the drop are still delivered")
	assert.Equal(t, `{"status":"ok"}`, string(f.Data))

	_, err = receive(t, ch)
	assert.ErrorIs(t, err, ErrClosedAbruptly)
}

func TestChannel_PeerSendsCloseFrame(t *testing.T) {
	addr := startServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		drain(conn)
	})
	ch := open(t, addr)

	_, err := receive(t, ch)
	assert.ErrorIs(t, err, ErrClosedAbruptly)

	// Every later receive reports the same condition.
	_, err = receive(t, ch)
	assert.ErrorIs(t, err, ErrClosedAbruptly)
}

func TestChannel_SingleWaiter(t *testing.T) {
	addr := startServer(t, drain)
	ch := open(t, addr)

	firstErr := make(chan error, 1)
	go func() {
		_, err := ch.Receive(context.Background())
		firstErr <- err
	}()
	require.Eventually(t, ch.receiving.Load, 2*time.Second, time.Millisecond)

	_, err := ch.Receive(context.Background())
	assert.ErrorIs(t, err, ErrReceiveInProgress)

	require.NoError(t, ch.Close())
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrChannelClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("waiting receive was not released by Close")
	}
}

func TestChannel_CancelledReceiveLeavesNoWaiter(t *testing.T) {
	release := make(chan struct{})
	addr := startServer(t, func(conn *websocket.Conn) {
		<-release
		_ = conn.WriteMessage(websocket.TextMessage, []byte("late"))
		drain(conn)
	})
	ch := open(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	f, err := receive(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "late", string(f.Data))
}

func TestChannel_CloseSendsNormalClosure(t *testing.T) {
	closeCode := make(chan int, 1)
	addr := startServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			closeCode <- ce.Code
			return
		}
		closeCode <- -1
	})
	ch := open(t, addr)

	require.NoError(t, ch.Close())

	select {
	case code := <-closeCode:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe the close")
	}
}

func TestChannel_UseAfterClose(t *testing.T) {
	addr := startServer(t, drain)
	ch := open(t, addr)

	require.NoError(t, ch.Close())
	assert.NotPanics(t, func() { _ = ch.Close() })

	_, err := receive(t, ch)
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, ch.SendText([]byte("x")), ErrChannelClosed)
	_, err = ch.SendBinary(strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrChannelClosed)
}

// fakeConn is an in-memory Conn for lifecycle tests.
type fakeConn struct {
	mu         sync.Mutex
	frames     chan Frame
	gone       chan struct{}
	goneOnce   sync.Once
	closeCalls int
	controls   []int
	written    [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 4), gone: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return int(f.Kind), f.Data, nil
	case <-c.gone:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) NextWriter(int) (io.WriteCloser, error) {
	return &fakeWriter{conn: c}, nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.goneOnce.Do(func() { close(c.gone) })
	return nil
}

type fakeWriter struct {
	conn *fakeConn
	buf  bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Close() error {
	return w.conn.WriteMessage(websocket.BinaryMessage, w.buf.Bytes())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestChannel_CloseIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	ch := newChannel(conn)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ch.Close()
		}()
	}
	wg.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, 1, conn.closeCalls)
	assert.Equal(t, []int{websocket.CloseMessage}, conn.controls)
}

func TestChannel_PeerEOFIsAbrupt(t *testing.T) {
	conn := newFakeConn()
	ch := newChannel(conn)
	t.Cleanup(iox.CloseFunc(ch))

	conn.frames <- Frame{Kind: FrameBinary, Data: []byte{1, 2}}
	f, err := receive(t, ch)
	require.NoError(t, err)
	assert.Equal(t, FrameBinary, f.Kind)

	conn.goneOnce.Do(func() { close(conn.gone) })
	_, err = receive(t, ch)
	assert.ErrorIs(t, err, ErrClosedAbruptly)
}

func TestChannel_SendBinaryReaderError(t *testing.T) {
	conn := newFakeConn()
	ch := newChannel(conn)
	t.Cleanup(iox.CloseFunc(ch))

	_, err := ch.SendBinary(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestFrameKind_String(t *testing.T) {
	assert.Equal(t, "text", FrameText.String())
	assert.Equal(t, "binary", FrameBinary.String())
	assert.Equal(t, "frame(9)", FrameKind(9).String())
}
