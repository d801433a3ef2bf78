package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrClosedAbruptly is returned by Receive when the peer closed the
	// connection before the awaited frame arrived.
	ErrClosedAbruptly = errors.New("websocket connection was closed abruptly")
	// ErrChannelClosed is returned when the channel was closed by its owner.
	ErrChannelClosed = errors.New("transport: channel closed")
	// ErrReceiveInProgress is returned when Receive is called while another
	// Receive on the same channel is still waiting.
	ErrReceiveInProgress = errors.New("transport: receive already in progress")
)

// DialError reports a failure to open a channel.
type DialError struct {
	// Addr is the address that was dialed.
	Addr string
	// StatusCode is the HTTP status of a rejected handshake, 0 otherwise.
	StatusCode int
	// Err is the underlying cause.
	Err error
}

func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: dial %s: %v (status %d)", e.Addr, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("transport: dial %s: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// IsDialError reports whether err is (or wraps) a *DialError.
func IsDialError(err error) bool {
	var dialErr *DialError
	return errors.As(err, &dialErr)
}
