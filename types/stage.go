// Package types defines core domain types shared by the edit session client,
// the event stream and the session journal.
//
//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// Stage is a coarse progress marker emitted while a session advances.
// Within one session Upload always precedes Edit and each is emitted at most once.
type Stage string

const (
	// StageUpload is emitted once the request frame has been sent and the
	// payload upload begins.
	StageUpload Stage = "upload"
	// StageEdit is emitted once the server acknowledged the payload and
	// started processing it.
	StageEdit Stage = "edit"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s == StageUpload || s == StageEdit
}

// Order returns the position of the stage within a session (1-based).
// Unknown stages return 0.
func (s Stage) Order() int {
	switch s {
	case StageUpload:
		return 1
	case StageEdit:
		return 2
	default:
		return 0
	}
}

// Label returns the human-readable progress label for the stage.
func (s Stage) Label() string {
	switch s {
	case StageUpload:
		return "Uploading..."
	case StageEdit:
		return "Editing..."
	default:
		return "..."
	}
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.Valid() {
		return "", fmt.Errorf("invalid stage: %q", s)
	}
	return stage, nil
}
