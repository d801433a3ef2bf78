// Package session drives one edit session against the edit server.
//
// A session owns one transport channel for its whole life and walks a fixed
// sequence of states:
//
//	connecting -> announcing -> uploading -> awaiting_ack -> awaiting_result -> closed
//
// Success and the two classified failures (locate_failed, download_failed)
// are returned as a *Result. Everything else (transport errors, protocol
// violations, unclassified server codes, timeouts, cancellation) is returned
// as an error. The channel is closed exactly once on every path.
package session

import (
	"io"
	"time"

	"github.com/justapithecus/overdub/log"
	"github.com/justapithecus/overdub/metrics"
	"github.com/justapithecus/overdub/transport"
	"github.com/justapithecus/overdub/types"
)

// DefaultConnectTimeout bounds opening the channel.
const DefaultConnectTimeout = 10 * time.Second

// State is a step of the session state machine.
type State int

// Session states, in order.
const (
	StateConnecting State = iota + 1
	StateAnnouncing
	StateUploading
	StateAwaitingAck
	StateAwaitingResult
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAnnouncing:
		return "announcing"
	case StateUploading:
		return "uploading"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateAwaitingResult:
		return "awaiting_result"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config bounds the suspend points of a session.
// A zero AckTimeout or ResultTimeout waits indefinitely.
type Config struct {
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
	ResultTimeout  time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Request is the input to one session. It is not modified by Edit.
type Request struct {
	// VideoID is the opaque reference video id. Must be non-empty.
	VideoID string
	// Payload yields exactly Size bytes.
	Payload io.Reader
	// Size is the declared payload length in bytes.
	Size int64
	// SessionID identifies the session locally. Allocated when empty.
	SessionID string
}

// Result is the non-fatal outcome of a session.
type Result struct {
	SessionID string
	// Status is OutcomeSuccess, OutcomeLocateFailed or OutcomeDownloadFailed.
	Status types.OutcomeStatus
	// ResultID is set on success.
	ResultID string
	// Reason is set on a classified failure.
	Reason types.FailureReason
	// BytesSent is the number of payload bytes uploaded.
	BytesSent int64
}

// Succeeded reports whether the server returned a result id.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == types.OutcomeSuccess
}

// Client runs edit sessions against one endpoint. A Client holds no
// per-session state and may run concurrent sessions.
type Client struct {
	addr    string
	dialer  transport.Dialer
	config  Config
	logger  *log.Logger
	metrics *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithDialer sets the dialer used to open channels.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithConfig sets the session timeouts.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.config = cfg }
}

// WithLogger sets the logger. Session context is added per session.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. A nil collector is allowed.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient returns a client for the edit endpoint at addr
// (for example ws://127.0.0.1:8000/api/edit).
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		addr:   addr,
		dialer: transport.WebsocketDialer{},
		config: DefaultConfig(),
		logger: log.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the endpoint address.
func (c *Client) Addr() string {
	return c.addr
}
