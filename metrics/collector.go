// Package metrics provides per-process edit session metrics.
//
// The Collector accumulates counters while the CLI runs sessions. It is a
// leaf package with no internal dependencies; outcome and error code labels
// are plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted    int64
	SessionsSucceeded  int64
	ClassifiedFailures int64
	FailuresByReason   map[string]int64
	FatalErrors        int64

	// Fatal error breakdown
	ConnectFailures    int64
	ProtocolViolations int64
	ServerErrors       int64
	ServerErrorsByCode map[string]int64
	Timeouts           int64

	// Upload
	BytesUploaded int64

	// Journal
	JournalWriteSuccess int64
	JournalWriteFailure int64

	// Dimensions (informational, set at construction)
	Endpoint       string
	StorageBackend string
}

// Collector accumulates session metrics.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted    int64
	sessionsSucceeded  int64
	classifiedFailures int64
	failuresByReason   map[string]int64
	fatalErrors        int64

	connectFailures    int64
	protocolViolations int64
	serverErrors       int64
	serverErrorsByCode map[string]int64
	timeouts           int64

	bytesUploaded int64

	journalWriteSuccess int64
	journalWriteFailure int64

	endpoint       string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when no journal is configured.
func NewCollector(endpoint, storageBackend string) *Collector {
	return &Collector{
		failuresByReason:   make(map[string]int64),
		serverErrorsByCode: make(map[string]int64),
		endpoint:           endpoint,
		storageBackend:     storageBackend,
	}
}

// --- Session lifecycle ---

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsStarted++
	c.mu.Unlock()
}

// IncSessionSucceeded records a session that returned a result id.
func (c *Collector) IncSessionSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsSucceeded++
	c.mu.Unlock()
}

// IncClassifiedFailure records a recoverable failure by reason.
func (c *Collector) IncClassifiedFailure(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.classifiedFailures++
	c.failuresByReason[reason]++
	c.mu.Unlock()
}

// IncFatalError records a session that ended with a fatal error.
func (c *Collector) IncFatalError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fatalErrors++
	c.mu.Unlock()
}

// --- Fatal error breakdown ---
// These refine IncFatalError and are recorded alongside it.

// IncConnectFailure records a failure to open the session channel.
func (c *Collector) IncConnectFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connectFailures++
	c.mu.Unlock()
}

// IncProtocolViolation records a malformed or out-of-order server frame.
func (c *Collector) IncProtocolViolation() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protocolViolations++
	c.mu.Unlock()
}

// IncServerError records an unclassified server error code.
func (c *Collector) IncServerError(code string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.serverErrors++
	c.serverErrorsByCode[code]++
	c.mu.Unlock()
}

// IncTimeout records an expired ack or result wait.
func (c *Collector) IncTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.timeouts++
	c.mu.Unlock()
}

// --- Upload ---

// AddBytesUploaded records payload bytes written to the channel.
func (c *Collector) AddBytesUploaded(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.bytesUploaded += n
	c.mu.Unlock()
}

// --- Journal ---

// IncJournalWriteSuccess records a successful journal write (per-call).
func (c *Collector) IncJournalWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalWriteSuccess++
	c.mu.Unlock()
}

// IncJournalWriteFailure records a failed journal write (per-call).
func (c *Collector) IncJournalWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.journalWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SessionsStarted:    c.sessionsStarted,
		SessionsSucceeded:  c.sessionsSucceeded,
		ClassifiedFailures: c.classifiedFailures,
		FailuresByReason:   copyCounts(c.failuresByReason),
		FatalErrors:        c.fatalErrors,

		ConnectFailures:    c.connectFailures,
		ProtocolViolations: c.protocolViolations,
		ServerErrors:       c.serverErrors,
		ServerErrorsByCode: copyCounts(c.serverErrorsByCode),
		Timeouts:           c.timeouts,

		BytesUploaded: c.bytesUploaded,

		JournalWriteSuccess: c.journalWriteSuccess,
		JournalWriteFailure: c.journalWriteFailure,

		Endpoint:       c.endpoint,
		StorageBackend: c.storageBackend,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
