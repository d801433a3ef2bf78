package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justapithecus/overdub/transport"
	"github.com/justapithecus/overdub/types"
	"github.com/justapithecus/overdub/wire"
)

// upload is what the fake server received before replying.
type upload struct {
	request wire.Request
	payload []byte
	err     error
}

// step is one scripted server action after the upload was read.
type step func(conn *websocket.Conn) error

// errHungUp stops the script without waiting for the client's close.
var errHungUp = errors.New("hung up")

func reply(frame string) step {
	return func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

func binaryReply(data []byte) step {
	return func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.BinaryMessage, data)
	}
}

// hangUp drops the TCP connection without a close frame.
func hangUp() step {
	return func(conn *websocket.Conn) error {
		_ = conn.NetConn().Close()
		return errHungUp
	}
}

// encodeReply renders a server reply the way the edit server sends it.
func encodeReply(r wire.Reply) string {
	data, err := wire.EncodeReply(r)
	if err != nil {
		panic(err)
	}
	return string(data)
}

var ackFrame = encodeReply(wire.Reply{Kind: wire.ReplyAck})

func doneFrame(id string) string {
	return encodeReply(wire.Reply{Kind: wire.ReplyDone, ResultID: id})
}

func errorFrame(code string) string {
	return encodeReply(wire.Reply{Kind: wire.ReplyError, Code: wire.ErrorCode(code)})
}

// fakeServer is an in-process edit server driven by a script.
type fakeServer struct {
	addr    string
	uploads chan upload
	// after receives the result of the first read after the script ran,
	// which shows what the client did next.
	after chan error
}

func newFakeServer(t *testing.T, steps ...step) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		uploads: make(chan upload, 1),
		after:   make(chan error, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		up := readUpload(conn)
		fs.uploads <- up
		if up.err != nil {
			return
		}
		for _, s := range steps {
			if err := s(conn); err != nil {
				return
			}
		}
		_, _, err = conn.ReadMessage()
		fs.after <- err
	}))
	t.Cleanup(srv.Close)

	fs.addr = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/edit"
	return fs
}

func readUpload(conn *websocket.Conn) upload {
	kind, data, err := conn.ReadMessage()
	if err != nil {
		return upload{err: err}
	}
	if kind != websocket.TextMessage {
		return upload{err: fmt.Errorf("first frame kind = %d, want text", kind)}
	}
	var req wire.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return upload{err: err}
	}

	kind, payload, err := conn.ReadMessage()
	if err != nil {
		return upload{request: req, err: err}
	}
	if kind != websocket.BinaryMessage {
		return upload{request: req, err: fmt.Errorf("second frame kind = %d, want binary", kind)}
	}
	return upload{request: req, payload: payload}
}

func (fs *fakeServer) received(t *testing.T) upload {
	t.Helper()
	select {
	case up := <-fs.uploads:
		return up
	case <-time.After(5 * time.Second):
		t.Fatal("fake server received no upload")
		return upload{}
	}
}

// clientClose returns the close code the client sent after the script ran.
func (fs *fakeServer) clientClose(t *testing.T) int {
	t.Helper()
	select {
	case err := <-fs.after:
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code
		}
		t.Fatalf("client sent a frame instead of closing (err = %v)", err)
		return 0
	case <-time.After(5 * time.Second):
		t.Fatal("client did not close the channel")
		return 0
	}
}

// countingDialer counts dials and connection closes.
type countingDialer struct {
	inner  transport.Dialer
	dials  atomic.Int32
	closes atomic.Int32
}

func newCountingDialer() *countingDialer {
	return &countingDialer{inner: transport.WebsocketDialer{}}
}

func (d *countingDialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	d.dials.Add(1)
	conn, err := d.inner.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: conn, closes: &d.closes}, nil
}

type countingConn struct {
	transport.Conn
	closes *atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// stageRecorder collects reported stages.
type stageRecorder struct {
	mu     sync.Mutex
	stages []types.Stage
}

func (r *stageRecorder) Report(stage types.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *stageRecorder) got() []types.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Stage(nil), r.stages...)
}
