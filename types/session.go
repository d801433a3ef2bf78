package types

// SessionMeta identifies one local edit session.
// SessionID is allocated by the client and never sent to the server.
type SessionMeta struct {
	SessionID string
	VideoID   string
	// FileSize is the declared payload size in bytes.
	FileSize int64
}
