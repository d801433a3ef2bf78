package types

// EventType represents the type of an event stream frame.
type EventType string

// Event type constants.
const (
	EventTypeStage  EventType = "stage"
	EventTypeResult EventType = "result"
)

// IsTerminal returns true if this event type ends the stream for a session.
func (e EventType) IsTerminal() bool {
	return e == EventTypeResult
}

// EventEnvelope is one frame of the session event stream consumed by a UI
// process driving the CLI. All fields use msgpack tags.
type EventEnvelope struct {
	// ContractVersion is the semantic version of the event stream contract.
	ContractVersion string `msgpack:"contract_version" json:"contract_version"`
	// SessionID identifies the local session; it is never sent to the server.
	SessionID string `msgpack:"session_id" json:"session_id"`
	// Seq is the monotonic sequence number, starts at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Type is the event type discriminator.
	Type EventType `msgpack:"type" json:"type"`
	// Ts is the event timestamp in ISO 8601 UTC format.
	Ts string `msgpack:"ts" json:"ts"`
	// Stage is set for stage events.
	Stage Stage `msgpack:"stage,omitempty" json:"stage,omitempty"`
	// Result is set for result events.
	Result *ResultPayload `msgpack:"result,omitempty" json:"result,omitempty"`
}

// ResultPayload is the terminal payload of a session event stream.
type ResultPayload struct {
	// Outcome is the final session status.
	Outcome OutcomeStatus `msgpack:"outcome" json:"outcome"`
	// ResultID is the server result handle (success only).
	ResultID string `msgpack:"result_id,omitempty" json:"result_id,omitempty"`
	// ErrorCode is the server error code when the server reported one.
	ErrorCode string `msgpack:"error_code,omitempty" json:"error_code,omitempty"`
	// Message is a human-readable description of a failure.
	Message string `msgpack:"message,omitempty" json:"message,omitempty"`
}
