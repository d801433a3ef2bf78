package types

// FailureReason is a recoverable, user-actionable failure reported by the
// edit server. The session terminates cleanly and the caller may try again.
type FailureReason string

const (
	// FailureLocateFailed means the server could not locate the reference
	// audio inside the uploaded video.
	FailureLocateFailed FailureReason = "locate_failed"
	// FailureDownloadFailed means the server could not download the
	// referenced video.
	FailureDownloadFailed FailureReason = "download_failed"
)

// OutcomeStatus is the final status of one edit session.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the server returned a result id.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeLocateFailed is the classified failure for FailureLocateFailed.
	OutcomeLocateFailed OutcomeStatus = "locate_failed"
	// OutcomeDownloadFailed is the classified failure for FailureDownloadFailed.
	OutcomeDownloadFailed OutcomeStatus = "download_failed"
	// OutcomeError indicates a fatal, unclassified failure (transport error,
	// protocol violation or unclassified server error). It is never carried
	// by a session result; it only appears in journal records, adapters and
	// the event stream.
	OutcomeError OutcomeStatus = "error"
)

// OutcomeForReason maps a classified failure reason to its outcome status.
func OutcomeForReason(reason FailureReason) OutcomeStatus {
	switch reason {
	case FailureLocateFailed:
		return OutcomeLocateFailed
	case FailureDownloadFailed:
		return OutcomeDownloadFailed
	default:
		return OutcomeError
	}
}

// IsClassifiedFailure reports whether the status is a recoverable failure.
func (s OutcomeStatus) IsClassifiedFailure() bool {
	return s == OutcomeLocateFailed || s == OutcomeDownloadFailed
}

// Valid reports whether s is a known outcome status.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeSuccess, OutcomeLocateFailed, OutcomeDownloadFailed, OutcomeError:
		return true
	default:
		return false
	}
}
