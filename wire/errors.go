package wire

import (
	"errors"
	"fmt"

	"github.com/justapithecus/overdub/types"
)

// ErrorCode is a semantic error code reported by the edit server.
type ErrorCode string

// Known error codes. The set is closed: extend only by adding a new code.
const (
	CodeFileTooBig         ErrorCode = "file_too_big"
	CodeParseError         ErrorCode = "parse_error"
	CodeNegativeSize       ErrorCode = "negative_size"
	CodeProtocolViolation  ErrorCode = "protocol_violation"
	CodeServerError        ErrorCode = "server_error"
	CodeEditFailed         ErrorCode = "edit_failed"
	CodeEditLocateFailed   ErrorCode = "edit_locate_failed"
	CodeEditDownloadFailed ErrorCode = "edit_download_failed"
)

// KnownCodes returns every known error code.
func KnownCodes() []ErrorCode {
	return []ErrorCode{
		CodeFileTooBig,
		CodeParseError,
		CodeNegativeSize,
		CodeProtocolViolation,
		CodeServerError,
		CodeEditFailed,
		CodeEditLocateFailed,
		CodeEditDownloadFailed,
	}
}

// Known reports whether c belongs to the known code set.
func (c ErrorCode) Known() bool {
	for _, k := range KnownCodes() {
		if c == k {
			return true
		}
	}
	return false
}

// Classify maps an error code to a recoverable failure reason.
// Only edit_locate_failed and edit_download_failed are classified; every
// other code, known or not, is fatal.
func Classify(c ErrorCode) (types.FailureReason, bool) {
	switch c {
	case CodeEditLocateFailed:
		return types.FailureLocateFailed, true
	case CodeEditDownloadFailed:
		return types.FailureDownloadFailed, true
	default:
		return "", false
	}
}

var (
	// ErrProtocolViolation matches every *ProtocolError via errors.Is.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrServer matches every *ServerError via errors.Is.
	ErrServer = errors.New("server error")
)

// ProtocolError reports a frame that is malformed or not permitted in the
// current session state. Always fatal.
type ProtocolError struct {
	// Msg describes the violation.
	Msg string
	// Frame is the offending frame, if any.
	Frame []byte
	// Err is the underlying decode error, if any.
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation: %s: %v", e.Msg, e.Err)
	}
	return "protocol violation: " + e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProtocolViolation.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// ServerError is an unclassified error code reported by the server.
// The code is preserved for diagnostics. Always fatal.
type ServerError struct {
	Code ErrorCode
}

func (e *ServerError) Error() string {
	if !e.Code.Known() {
		return fmt.Sprintf("server error: unrecognized code %q", string(e.Code))
	}
	return "server error: " + string(e.Code)
}

// Is reports whether target is ErrServer.
func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// CodeOf extracts the server error code carried by err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Code, true
	}
	return "", false
}
