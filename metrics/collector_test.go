package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("ws://127.0.0.1:8000/api/edit", "fs")

	c.IncSessionStarted()
	c.IncSessionStarted()
	c.IncSessionStarted()
	c.IncSessionSucceeded()
	c.IncClassifiedFailure("locate_failed")
	c.IncFatalError()
	c.IncConnectFailure()
	c.IncProtocolViolation()
	c.IncServerError("server_error")
	c.IncServerError("server_error")
	c.IncTimeout()
	c.AddBytesUploaded(1024)
	c.AddBytesUploaded(0)
	c.AddBytesUploaded(-5)
	c.IncJournalWriteSuccess()
	c.IncJournalWriteFailure()

	s := c.Snapshot()

	if s.SessionsStarted != 3 {
		t.Errorf("SessionsStarted = %d, want 3", s.SessionsStarted)
	}
	if s.SessionsSucceeded != 1 {
		t.Errorf("SessionsSucceeded = %d, want 1", s.SessionsSucceeded)
	}
	if s.ClassifiedFailures != 1 {
		t.Errorf("ClassifiedFailures = %d, want 1", s.ClassifiedFailures)
	}
	if s.FailuresByReason["locate_failed"] != 1 {
		t.Errorf("FailuresByReason[locate_failed] = %d, want 1", s.FailuresByReason["locate_failed"])
	}
	if s.FatalErrors != 1 {
		t.Errorf("FatalErrors = %d, want 1", s.FatalErrors)
	}
	if s.ConnectFailures != 1 {
		t.Errorf("ConnectFailures = %d, want 1", s.ConnectFailures)
	}
	if s.ProtocolViolations != 1 {
		t.Errorf("ProtocolViolations = %d, want 1", s.ProtocolViolations)
	}
	if s.ServerErrors != 2 {
		t.Errorf("ServerErrors = %d, want 2", s.ServerErrors)
	}
	if s.ServerErrorsByCode["server_error"] != 2 {
		t.Errorf("ServerErrorsByCode[server_error] = %d, want 2", s.ServerErrorsByCode["server_error"])
	}
	if s.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", s.Timeouts)
	}
	if s.BytesUploaded != 1024 {
		t.Errorf("BytesUploaded = %d, want 1024", s.BytesUploaded)
	}
	if s.JournalWriteSuccess != 1 || s.JournalWriteFailure != 1 {
		t.Errorf("JournalWrite = (%d, %d), want (1, 1)", s.JournalWriteSuccess, s.JournalWriteFailure)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("wss://edit.example/api/edit", "s3")
	s := c.Snapshot()

	if s.Endpoint != "wss://edit.example/api/edit" {
		t.Errorf("Endpoint = %q", s.Endpoint)
	}
	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
}

func TestCollector_NilReceiver(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.IncSessionStarted()
	c.IncSessionSucceeded()
	c.IncClassifiedFailure("download_failed")
	c.IncFatalError()
	c.IncConnectFailure()
	c.IncProtocolViolation()
	c.IncServerError("edit_failed")
	c.IncTimeout()
	c.AddBytesUploaded(10)
	c.IncJournalWriteSuccess()
	c.IncJournalWriteFailure()

	s := c.Snapshot()
	if s.SessionsStarted != 0 || s.FailuresByReason != nil {
		t.Errorf("nil collector snapshot = %+v, want zero value", s)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("ws://x", "")
	c.IncClassifiedFailure("locate_failed")

	s := c.Snapshot()
	s.FailuresByReason["locate_failed"] = 99

	c.IncClassifiedFailure("locate_failed")
	s2 := c.Snapshot()
	if s2.FailuresByReason["locate_failed"] != 2 {
		t.Errorf("FailuresByReason[locate_failed] = %d, want 2", s2.FailuresByReason["locate_failed"])
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("ws://x", "fs")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncSessionStarted()
			c.AddBytesUploaded(2)
			c.IncServerError("edit_failed")
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.SessionsStarted != 50 {
		t.Errorf("SessionsStarted = %d, want 50", s.SessionsStarted)
	}
	if s.BytesUploaded != 100 {
		t.Errorf("BytesUploaded = %d, want 100", s.BytesUploaded)
	}
	if s.ServerErrorsByCode["edit_failed"] != 50 {
		t.Errorf("ServerErrorsByCode[edit_failed] = %d, want 50", s.ServerErrorsByCode["edit_failed"])
	}
}
