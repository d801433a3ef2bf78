// Package adapter defines the completion adapter boundary.
//
// Adapters announce finished edit sessions to downstream systems. A failed
// publication is reported to the caller but never changes a session outcome.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/overdub/journal"
	"github.com/justapithecus/overdub/types"
)

// EventTypeEditCompleted is the event_type of every published event.
const EventTypeEditCompleted = "edit_completed"

// EditCompletedEvent is the payload published when a session finishes.
type EditCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "edit_completed"
	SessionID       string `json:"session_id"`
	VideoID         string `json:"video_id"`
	Outcome         string `json:"outcome"` // success, locate_failed, download_failed, error
	ResultID        string `json:"result_id,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	Message         string `json:"message,omitempty"`
	FileSize        int64  `json:"file_size"`
	BytesSent       int64  `json:"bytes_sent"`
	Day             string `json:"day"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	DurationMs      int64  `json:"duration_ms"`
}

// NewEditCompletedEvent builds the event for a journaled session.
func NewEditCompletedEvent(rec *journal.SessionRecord) *EditCompletedEvent {
	return &EditCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeEditCompleted,
		SessionID:       rec.SessionID,
		VideoID:         rec.VideoID,
		Outcome:         string(rec.Outcome),
		ResultID:        rec.ResultID,
		ErrorCode:       rec.ErrorCode,
		Message:         rec.Error,
		FileSize:        rec.FileSize,
		BytesSent:       rec.BytesSent,
		Day:             rec.Day(),
		Timestamp:       rec.FinishedAt.UTC().Format(time.RFC3339),
		DurationMs:      rec.Duration().Milliseconds(),
	}
}

// Adapter publishes completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *EditCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. It doubles per retry.
var BaseBackoff = 500 * time.Millisecond

// Retry calls attempt up to 1+retries times with exponential backoff between
// calls. It stops early when attempt returns nil, when permanent reports the
// error as non-retriable, or when ctx is done.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, attempt func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
