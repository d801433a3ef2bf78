package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/overdub/adapter"
	"github.com/justapithecus/overdub/cli/config"
	"github.com/justapithecus/overdub/cli/tui"
	"github.com/justapithecus/overdub/iox"
	"github.com/justapithecus/overdub/ipc"
	"github.com/justapithecus/overdub/journal"
	"github.com/justapithecus/overdub/log"
	"github.com/justapithecus/overdub/metrics"
	"github.com/justapithecus/overdub/progress"
	"github.com/justapithecus/overdub/session"
	"github.com/justapithecus/overdub/types"
	"github.com/justapithecus/overdub/videoid"
)

// adapterPublishTimeout bounds the whole publication, retries included.
const adapterPublishTimeout = 30 * time.Second

// Event stream modes for --events.
const (
	eventsNone = "none"
	eventsIPC  = "ipc"
)

// EditCommand returns the edit command.
// This is the only command that contacts the edit server.
func EditCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "video",
			Aliases:  []string{"v"},
			Usage:    "YouTube link or video id of the reference video",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "file",
			Usage:    "Path to the gameplay video to upload",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "backend-prefix",
			Usage: "Edit server origin (ws:// or wss://), overrides config and $" + config.BackendPrefixEnv,
		},
		&cli.StringFlag{
			Name:  "endpoint-path",
			Usage: "Edit endpoint path (default " + config.DefaultEndpointPath + ")",
		},
		&cli.DurationFlag{
			Name:  "connect-timeout",
			Usage: "Connection timeout",
		},
		&cli.DurationFlag{
			Name:  "ack-timeout",
			Usage: "Timeout waiting for the upload acknowledgement (0 = wait indefinitely)",
		},
		&cli.DurationFlag{
			Name:  "result-timeout",
			Usage: "Timeout waiting for the edit result (0 = wait indefinitely)",
		},
		&cli.Int64Flag{
			Name:  "max-file-size",
			Usage: "Upload limit in bytes (default 512MiB)",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Local session id (default: random UUID)",
		},
		&cli.StringFlag{
			Name:  "events",
			Usage: "Event stream on stdout: none or ipc",
			Value: eventsNone,
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress progress and result output",
		},
		FormatFlag,
		TUIFlag,
		ConfigFlag,
		LogLevelFlag,
	}
	flags = append(flags, journalFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:   "edit",
		Usage:  "Replace the audio of a gameplay video with the music of a YouTube video",
		Flags:  flags,
		Action: editAction,
	}
}

// EditResponse is the rendered result of the edit command.
type EditResponse struct {
	SessionID  string              `json:"session_id" yaml:"session_id"`
	VideoID    string              `json:"video_id" yaml:"video_id"`
	Outcome    types.OutcomeStatus `json:"outcome" yaml:"outcome"`
	ResultID   string              `json:"result_id,omitempty" yaml:"result_id,omitempty"`
	ErrorCode  string              `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Message    string              `json:"message,omitempty" yaml:"message,omitempty"`
	Note       string              `json:"note,omitempty" yaml:"note,omitempty"`
	BytesSent  int64               `json:"bytes_sent" yaml:"bytes_sent"`
	DurationMs int64               `json:"duration_ms" yaml:"duration_ms"`
}

// upload is a validated local payload.
type upload struct {
	file *os.File
	name string
	size int64
}

func editAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	level, err := resolveLogLevel(c.String("log-level"), cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	events := c.String("events")
	if events != eventsNone && events != eventsIPC {
		return cli.Exit(fmt.Sprintf("invalid --events: %q (must be none or ipc)", events), exitInvalidInput)
	}
	useTUI := c.Bool("tui")
	quiet := c.Bool("quiet")
	if useTUI && quiet {
		return cli.Exit("--tui and --quiet are mutually exclusive", exitInvalidInput)
	}

	r, err := newRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	videoID, err := videoid.Resolve(c.String("video"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("%v: %q", err, c.String("video")), exitInvalidInput)
	}

	endpointPath := cfg.Endpoint.Path
	if v := c.String("endpoint-path"); v != "" {
		endpointPath = v
	}
	addr, err := config.EditAddress(config.ResolveBackendPrefix(c.String("backend-prefix"), cfg), endpointPath)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	maxSize := cfg.MaxFileSize()
	if c.IsSet("max-file-size") {
		maxSize = c.Int64("max-file-size")
	}
	up, err := openUpload(c.String("file"), maxSize)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	defer iox.DiscardClose(up.file)

	// The TUI owns stderr while it runs; logs are held back until it exits.
	stderr := c.App.ErrWriter
	var heldLogs bytes.Buffer
	logOut := stderr
	if useTUI {
		logOut = &heldLogs
	}
	logger := log.New(logOut, level)
	defer iox.DiscardErr(logger.Sync)

	jc := resolveJournal(c, cfg)
	collector := metrics.NewCollector(addr, jc.storageBackend())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jrnl, err := buildJournal(ctx, jc, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open journal: %v", err), exitInvalidInput)
	}
	if jrnl != nil {
		defer iox.DiscardClose(jrnl)
	}

	ac, err := resolveAdapter(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	pub, err := buildAdapter(ac)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitInvalidInput)
	}
	if pub != nil {
		defer iox.DiscardClose(pub)
	}

	client := session.NewClient(addr,
		session.WithConfig(sessionConfig(c, cfg)),
		session.WithLogger(logger),
		session.WithMetrics(collector),
	)

	sessionID := c.String("session-id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	req := session.Request{
		VideoID:   videoID,
		Payload:   up.file,
		Size:      up.size,
		SessionID: sessionID,
	}

	var emitter *ipc.Emitter
	var stream progress.Reporter
	if events == eventsIPC {
		emitter = ipc.NewEmitter(c.App.Writer, sessionID)
		stream = emitter
	}

	var (
		res     *session.Result
		editErr error
	)
	started := time.Now()
	// The queue is drained before the result is written, so stage frames
	// precede the result frame on the event stream.
	edit := func(ctx context.Context, view progress.Reporter) {
		stages := progress.NewAsync(progress.Tee(view, stream), progress.WithLogger(logger))
		res, editErr = client.Edit(ctx, req, stages)
		if err := stages.Close(); err != nil {
			logger.Warn("progress observer still busy after session end", map[string]any{"error": err.Error()})
		}
	}

	if useTUI {
		tuiCtx, cancel := context.WithCancel(ctx)
		header := tui.Header{VideoID: videoID, FileName: up.name}
		err := tui.RunEdit(header, cancel, func(view progress.Reporter) tui.Outcome {
			edit(tuiCtx, view)
			return tuiOutcome(res, editErr)
		}, tea.WithOutput(stderr))
		cancel()
		if err != nil {
			logger.Warn("tui failed", map[string]any{"error": err.Error()})
		}
	} else {
		var printer progress.Reporter
		if !quiet {
			printer = progress.ReporterFunc(func(stage types.Stage) {
				fmt.Fprintln(stderr, stage.Label())
			})
		}
		edit(ctx, printer)
	}
	finished := time.Now()

	rec := sessionRecord(req, up, addr, res, editErr, collector.Snapshot(), started, finished)
	finish(ctx, logger, jrnl, pub, emitter, rec, collector)

	if useTUI {
		_, _ = io.Copy(stderr, &heldLogs)
	}

	if !quiet && !useTUI && events != eventsIPC {
		if err := r.Render(editResponse(rec)); err != nil {
			logger.Warn("failed to render result", map[string]any{"error": err.Error()})
		}
	}

	switch {
	case editErr != nil:
		return cli.Exit(fmt.Sprintf("%s: %v", msgFatal, editErr), exitFatal)
	case !res.Succeeded():
		return cli.Exit(outcomeMessage(res.Status), outcomeToExitCode(res.Status))
	default:
		return nil
	}
}

// finish journals the session, publishes it to the adapter and closes the
// event stream. Failures are logged and never change the outcome. A
// cancelled session is still recorded.
func finish(ctx context.Context, logger *log.Logger, jrnl *journal.Journal, pub adapter.Adapter, emitter *ipc.Emitter, rec *journal.SessionRecord, collector *metrics.Collector) {
	ctx = context.WithoutCancel(ctx)

	if jrnl != nil {
		snap := collector.Snapshot()
		if err := jrnl.Record(ctx, rec, &snap); err != nil {
			logger.Warn("failed to journal session", map[string]any{"error": err.Error()})
		}
	}

	if pub != nil {
		pubCtx, cancel := context.WithTimeout(ctx, adapterPublishTimeout)
		err := pub.Publish(pubCtx, adapter.NewEditCompletedEvent(rec))
		cancel()
		if err != nil {
			logger.Warn("failed to publish completion event", map[string]any{"error": err.Error()})
		}
	}

	if emitter != nil {
		err := emitter.Result(types.ResultPayload{
			Outcome:   rec.Outcome,
			ResultID:  rec.ResultID,
			ErrorCode: rec.ErrorCode,
			Message:   rec.Error,
		})
		if err != nil {
			logger.Warn("failed to write event stream", map[string]any{"error": err.Error()})
		}
	}
}

func openUpload(path string, maxSize int64) (*upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		iox.DiscardClose(f)
		return nil, fmt.Errorf("cannot stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		iox.DiscardClose(f)
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxSize {
		iox.DiscardClose(f)
		return nil, fmt.Errorf("file is too big (maximum size is %s)", formatSize(maxSize))
	}
	return &upload{file: f, name: filepath.Base(path), size: info.Size()}, nil
}

func sessionConfig(c *cli.Context, cfg *config.Config) session.Config {
	sc := session.DefaultConfig()
	if d := cfg.Session.ConnectTimeout.Duration; d > 0 {
		sc.ConnectTimeout = d
	}
	sc.AckTimeout = cfg.Session.AckTimeout.Duration
	sc.ResultTimeout = cfg.Session.ResultTimeout.Duration

	if c.IsSet("connect-timeout") {
		sc.ConnectTimeout = c.Duration("connect-timeout")
	}
	if c.IsSet("ack-timeout") {
		sc.AckTimeout = c.Duration("ack-timeout")
	}
	if c.IsSet("result-timeout") {
		sc.ResultTimeout = c.Duration("result-timeout")
	}
	return sc
}

func sessionRecord(req session.Request, up *upload, addr string, res *session.Result, err error, snap metrics.Snapshot, started, finished time.Time) *journal.SessionRecord {
	rec := &journal.SessionRecord{
		SessionID:  req.SessionID,
		VideoID:    req.VideoID,
		FileName:   up.name,
		FileSize:   up.size,
		Endpoint:   addr,
		BytesSent:  snap.BytesUploaded,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		rec.Outcome = types.OutcomeError
		rec.ErrorCode = errorCode(err)
		rec.Error = err.Error()
		if state, ok := session.FailedState(err); ok {
			rec.FailedState = state.String()
		}
		return rec
	}
	rec.Outcome = res.Status
	rec.ResultID = res.ResultID
	rec.ErrorCode = reasonCode(res.Reason)
	rec.BytesSent = res.BytesSent
	return rec
}

func editResponse(rec *journal.SessionRecord) EditResponse {
	resp := EditResponse{
		SessionID:  rec.SessionID,
		VideoID:    rec.VideoID,
		Outcome:    rec.Outcome,
		ResultID:   rec.ResultID,
		ErrorCode:  rec.ErrorCode,
		Message:    outcomeMessage(rec.Outcome),
		BytesSent:  rec.BytesSent,
		DurationMs: rec.Duration().Milliseconds(),
	}
	if rec.Outcome == types.OutcomeSuccess {
		resp.Note = msgExpiry
	}
	return resp
}

func tuiOutcome(res *session.Result, err error) tui.Outcome {
	if err != nil {
		return tui.Outcome{Status: types.OutcomeError, Message: msgFatal, Detail: err.Error()}
	}
	return tui.Outcome{Status: res.Status, ResultID: res.ResultID, Message: outcomeMessage(res.Status)}
}

// formatSize renders a byte count with the largest exact binary unit.
func formatSize(n int64) string {
	units := []struct {
		size int64
		name string
	}{
		{1 << 30, "GiB"},
		{1 << 20, "MiB"},
		{1 << 10, "KiB"},
	}
	for _, u := range units {
		if n >= u.size && n%u.size == 0 {
			return fmt.Sprintf("%d%s", n/u.size, u.name)
		}
	}
	return fmt.Sprintf("%d bytes", n)
}
