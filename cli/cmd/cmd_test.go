package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/overdub/cli/config"
	"github.com/justapithecus/overdub/types"
	"github.com/justapithecus/overdub/wire"
)

// announced is what the fake edit server received.
type announced struct {
	request wire.Request
	payload []byte
}

// newEditServer starts an edit server that reads the request and payload,
// then writes replies in order. It returns the backend prefix.
func newEditServer(t *testing.T, replies ...string) (string, <-chan announced) {
	t.Helper()
	got := make(chan announced, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/edit" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		var a announced
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := json.Unmarshal(data, &a.request); err != nil {
			return
		}
		if _, a.payload, err = conn.ReadMessage(); err != nil {
			return
		}
		got <- a

		for _, frame := range replies {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), got
}

func encodeReply(r wire.Reply) string {
	data, err := wire.EncodeReply(r)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func doneReply(id string) string {
	return encodeReply(wire.Reply{Kind: wire.ReplyDone, ResultID: id})
}

func errorReply(code string) string {
	return encodeReply(wire.Reply{Kind: wire.ReplyError, Code: wire.ErrorCode(code)})
}

var ackReply = encodeReply(wire.Reply{Kind: wire.ReplyAck})

// runApp runs the overdub commands with captured output.
func runApp(t *testing.T, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	app := &cli.App{
		Name:           "overdub",
		Writer:         stdout,
		ErrWriter:      stderr,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			EditCommand(),
			HistoryCommand(),
			DebugCommand(),
			VersionCommand("test"),
		},
	}
	err = app.Run(append([]string{"overdub"}, args...))
	return stdout, stderr, err
}

// exitCode returns the exit code err carries; nil is 0.
func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("error is not an exit coder: %v", err)
	}
	return ec.ExitCode()
}

// writeVideo writes a payload file and returns its path.
func writeVideo(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gameplay.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if resp.Commit != "test" || resp.Version == "" || resp.ContractVersion == "" {
		t.Errorf("unexpected version response: %+v", resp)
	}
}

func TestVersionCommand_TUIRejected(t *testing.T) {
	_, _, err := runApp(t, "version", "--tui")
	if code := exitCode(t, err); code != exitFatal {
		t.Errorf("exit code = %d, want %d", code, exitFatal)
	}
}

func TestOutcomeToExitCode(t *testing.T) {
	tests := map[string]int{
		"success":         exitSuccess,
		"locate_failed":   exitLocateFailed,
		"download_failed": exitDownloadFailed,
		"error":           exitFatal,
		"":                exitFatal,
	}
	for status, want := range tests {
		if got := outcomeToExitCode(types.OutcomeStatus(status)); got != want {
			t.Errorf("outcomeToExitCode(%q) = %d, want %d", status, got, want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512 << 20, "512MiB"},
		{1 << 30, "1GiB"},
		{4 << 10, "4KiB"},
		{1000, "1000 bytes"},
		{(1 << 20) + 1, "1048577 bytes"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestResolveLogLevel(t *testing.T) {
	cfg := &config.Config{}
	if lvl, err := resolveLogLevel("", cfg); err != nil || lvl != defaultLogLevel {
		t.Errorf("default level = (%v, %v), want warn", lvl, err)
	}
	cfg.LogLevel = "debug"
	if lvl, err := resolveLogLevel("", cfg); err != nil || lvl.String() != "debug" {
		t.Errorf("config level = (%v, %v), want debug", lvl, err)
	}
	if lvl, err := resolveLogLevel("error", cfg); err != nil || lvl.String() != "error" {
		t.Errorf("flag level = (%v, %v), want error", lvl, err)
	}
	if _, err := resolveLogLevel("chatty", cfg); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestHistory_RequiresJournal(t *testing.T) {
	_, _, err := runApp(t, "history")
	if code := exitCode(t, err); code != exitInvalidInput {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInput)
	}
}

func TestHistory_InvalidFilters(t *testing.T) {
	dir := t.TempDir()
	for name, args := range map[string][]string{
		"outcome": {"history", "--journal-path", dir, "--outcome", "maybe"},
		"day":     {"history", "--journal-path", dir, "--day", "17/10/2026"},
		"limit":   {"history", "--journal-path", dir, "--limit", "-1"},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := runApp(t, args...)
			if code := exitCode(t, err); code != exitInvalidInput {
				t.Errorf("exit code = %d, want %d", code, exitInvalidInput)
			}
		})
	}
}

func TestHistory_EmptyJournal(t *testing.T) {
	stdout, _, err := runApp(t, "history", "--journal-path", t.TempDir(), "--format", "json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "[]" {
		t.Errorf("output = %q, want []", stdout.String())
	}
}

func TestDebugEvents_Usage(t *testing.T) {
	_, _, err := runApp(t, "debug", "events")
	if code := exitCode(t, err); code != exitInvalidInput {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInput)
	}
}

func TestDebugEvents_MissingFile(t *testing.T) {
	_, _, err := runApp(t, "debug", "events", filepath.Join(t.TempDir(), "nope.bin"))
	if code := exitCode(t, err); code != exitInvalidInput {
		t.Errorf("exit code = %d, want %d", code, exitInvalidInput)
	}
}

// waitAnnounced returns what the edit server received.
func waitAnnounced(t *testing.T, got <-chan announced) announced {
	t.Helper()
	select {
	case a := <-got:
		return a
	case <-time.After(5 * time.Second):
		t.Fatal("edit server received nothing")
		return announced{}
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
