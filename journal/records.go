package journal

import (
	"encoding/json"
	"time"

	"github.com/justapithecus/overdub/metrics"
	"github.com/justapithecus/overdub/types"
)

// RecordKind discriminator values.
const (
	RecordKindSession = "session"
	RecordKindMetrics = "metrics"
)

// SessionRecord is the journal entry for one finished edit session.
type SessionRecord struct {
	SessionID string `json:"session_id"`
	VideoID   string `json:"video_id"`
	FileName  string `json:"file_name,omitempty"`
	FileSize  int64  `json:"file_size"`
	Endpoint  string `json:"endpoint"`

	Outcome  types.OutcomeStatus `json:"outcome"`
	ResultID string              `json:"result_id,omitempty"`
	// ErrorCode is the server error code, when the server reported one.
	ErrorCode string `json:"error_code,omitempty"`
	// Error is the fatal error text.
	Error string `json:"error,omitempty"`
	// FailedState is the session state a fatal error occurred in.
	FailedState string `json:"failed_state,omitempty"`

	BytesSent  int64     `json:"bytes_sent"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Day returns the day partition of the record (UTC, YYYY-MM-DD).
func (r *SessionRecord) Day() string {
	return r.FinishedAt.UTC().Format("2006-01-02")
}

// Duration returns the wall time of the session.
func (r *SessionRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// toSessionRecordMap converts a record to the map stored by the dataset.
// The map carries the partition keys and record_kind discriminator.
func toSessionRecordMap(r *SessionRecord) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindSession,
		"session_id":  r.SessionID,
		"video_id":    r.VideoID,
		"file_size":   r.FileSize,
		"endpoint":    r.Endpoint,
		"outcome":     string(r.Outcome),
		"bytes_sent":  r.BytesSent,
		"started_at":  r.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at": r.FinishedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms": r.Duration().Milliseconds(),
		"day":         r.Day(),
	}
	if r.FileName != "" {
		m["file_name"] = r.FileName
	}
	if r.ResultID != "" {
		m["result_id"] = r.ResultID
	}
	if r.ErrorCode != "" {
		m["error_code"] = r.ErrorCode
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.FailedState != "" {
		m["failed_state"] = r.FailedState
	}
	return m
}

// fromSessionRecordMap rebuilds a record read back from the dataset.
func fromSessionRecordMap(m map[string]any) SessionRecord {
	return SessionRecord{
		SessionID:   toString(m["session_id"]),
		VideoID:     toString(m["video_id"]),
		FileName:    toString(m["file_name"]),
		FileSize:    toInt64(m["file_size"]),
		Endpoint:    toString(m["endpoint"]),
		Outcome:     types.OutcomeStatus(toString(m["outcome"])),
		ResultID:    toString(m["result_id"]),
		ErrorCode:   toString(m["error_code"]),
		Error:       toString(m["error"]),
		FailedState: toString(m["failed_state"]),
		BytesSent:   toInt64(m["bytes_sent"]),
		StartedAt:   toTime(m["started_at"]),
		FinishedAt:  toTime(m["finished_at"]),
	}
}

// toMetricsRecordMap converts a metrics snapshot taken at the end of a
// session into a metrics record in the same partition as that session.
func toMetricsRecordMap(r *SessionRecord, s metrics.Snapshot) map[string]any {
	return map[string]any{
		"record_kind":           RecordKindMetrics,
		"session_id":            r.SessionID,
		"outcome":               string(r.Outcome),
		"day":                   r.Day(),
		"ts":                    r.FinishedAt.UTC().Format(time.RFC3339Nano),
		"sessions_started":      s.SessionsStarted,
		"sessions_succeeded":    s.SessionsSucceeded,
		"classified_failures":   s.ClassifiedFailures,
		"failures_by_reason":    s.FailuresByReason,
		"fatal_errors":          s.FatalErrors,
		"connect_failures":      s.ConnectFailures,
		"protocol_violations":   s.ProtocolViolations,
		"server_errors":         s.ServerErrors,
		"server_errors_by_code": s.ServerErrorsByCode,
		"timeouts":              s.Timeouts,
		"bytes_uploaded":        s.BytesUploaded,
		"endpoint":              s.Endpoint,
		"storage_backend":       s.StorageBackend,
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func toTime(v any) time.Time {
	s := toString(v)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
