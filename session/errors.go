package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned before connecting when the request
	// cannot be announced.
	ErrInvalidRequest = errors.New("session: invalid request")
	// ErrPayloadSizeMismatch is returned when the payload yields a different
	// number of bytes than the request declared.
	ErrPayloadSizeMismatch = errors.New("session: payload size does not match declared size")
	// ErrAckTimeout is returned when the server does not acknowledge the
	// upload within Config.AckTimeout.
	ErrAckTimeout = errors.New("session: timed out waiting for acknowledgement")
	// ErrResultTimeout is returned when the server does not report a result
	// within Config.ResultTimeout.
	ErrResultTimeout = errors.New("session: timed out waiting for result")
)

// StateError is a fatal session error annotated with the state the session
// was in when it failed.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// FailedState returns the state in which a fatal session error occurred.
func FailedState(err error) (State, bool) {
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return stateErr.State, true
	}
	return 0, false
}
