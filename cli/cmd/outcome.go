package cmd

import (
	"context"
	"errors"

	"github.com/justapithecus/overdub/session"
	"github.com/justapithecus/overdub/transport"
	"github.com/justapithecus/overdub/types"
	"github.com/justapithecus/overdub/wire"
)

// Exit codes for the edit command.
const (
	exitSuccess        = 0
	exitFatal          = 1
	exitLocateFailed   = 2
	exitDownloadFailed = 3
	exitInvalidInput   = 4
)

// User-facing messages.
const (
	msgLocateFailed   = "could not hear the music in the gameplay video; try another video"
	msgDownloadFailed = "could not download the YouTube video; check the link and try again"
	msgFatal          = "video edit failed"
	msgExpiry         = "download links expire after 20 minutes"
)

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return exitSuccess
	case types.OutcomeLocateFailed:
		return exitLocateFailed
	case types.OutcomeDownloadFailed:
		return exitDownloadFailed
	default:
		return exitFatal
	}
}

func outcomeMessage(status types.OutcomeStatus) string {
	switch status {
	case types.OutcomeSuccess:
		return ""
	case types.OutcomeLocateFailed:
		return msgLocateFailed
	case types.OutcomeDownloadFailed:
		return msgDownloadFailed
	default:
		return msgFatal
	}
}

// reasonCode returns the server code behind a classified failure.
func reasonCode(reason types.FailureReason) string {
	switch reason {
	case types.FailureLocateFailed:
		return string(wire.CodeEditLocateFailed)
	case types.FailureDownloadFailed:
		return string(wire.CodeEditDownloadFailed)
	default:
		return ""
	}
}

// errorCode returns a short code describing a fatal session error.
func errorCode(err error) string {
	if code, ok := wire.CodeOf(err); ok {
		return string(code)
	}
	switch {
	case transport.IsDialError(err):
		return "connect_failed"
	case errors.Is(err, wire.ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, session.ErrAckTimeout), errors.Is(err, session.ErrResultTimeout):
		return "timeout"
	case errors.Is(err, session.ErrPayloadSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, transport.ErrClosedAbruptly):
		return "connection_lost"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
