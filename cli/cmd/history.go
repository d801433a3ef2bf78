package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/overdub/cli/render"
	"github.com/justapithecus/overdub/cli/tui"
	"github.com/justapithecus/overdub/iox"
	"github.com/justapithecus/overdub/journal"
	"github.com/justapithecus/overdub/types"
)

// largeResultWarning is the row count above which an unbounded listing
// prints a hint on an interactive stderr.
const largeResultWarning = 100

// recentInSummary is the number of sessions shown below the TUI summary.
const recentInSummary = 10

// HistoryCommand returns the history command. It reads the session journal
// and never contacts the edit server.
func HistoryCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "day",
			Usage: "Only sessions finished on this UTC day (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "outcome",
			Usage: "Only sessions with this outcome: success, locate_failed, download_failed, error",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of sessions (0 = no limit)",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Show outcome totals and the latest metrics record instead of sessions",
		},
		ConfigFlag,
	}
	flags = append(flags, ReadOnlyFlags()...)
	flags = append(flags, journalFlags()...)

	return &cli.Command{
		Name:   "history",
		Usage:  "List journaled edit sessions",
		Flags:  flags,
		Action: historyAction,
	}
}

// HistoryRow is the table view of one journaled session.
type HistoryRow struct {
	rec journal.SessionRecord
}

// TableHeader implements render.Row.
func (HistoryRow) TableHeader() []string {
	return []string{"FINISHED", "SESSION", "VIDEO", "OUTCOME", "RESULT", "ERROR", "SIZE", "DURATION"}
}

// TableRow implements render.Row.
func (r HistoryRow) TableRow() []string {
	return []string{
		r.rec.FinishedAt.UTC().Format(time.RFC3339),
		r.rec.SessionID,
		r.rec.VideoID,
		string(r.rec.Outcome),
		r.rec.ResultID,
		r.rec.ErrorCode,
		strconv.FormatInt(r.rec.FileSize, 10),
		r.rec.Duration().Round(time.Millisecond).String(),
	}
}

// StatsResponse is the response for history --stats.
type StatsResponse struct {
	Summary journal.Summary `json:"summary" yaml:"summary"`
	Metrics map[string]any  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

func historyAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	outcome := types.OutcomeStatus(c.String("outcome"))
	if outcome != "" && !outcome.Valid() {
		return cli.Exit(fmt.Sprintf("invalid --outcome: %q", outcome), exitInvalidInput)
	}
	day := c.String("day")
	if day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return cli.Exit(fmt.Sprintf("invalid --day: %q (want YYYY-MM-DD)", day), exitInvalidInput)
		}
	}
	limit := c.Int("limit")
	if limit < 0 {
		return cli.Exit("--limit must not be negative", exitInvalidInput)
	}

	jc := resolveJournal(c, cfg)
	if jc.path == "" {
		return cli.Exit("no journal configured (set --journal-path or journal.path in the config file)", exitInvalidInput)
	}
	j, err := buildJournal(c.Context, jc, nil)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open journal: %v", err), exitInvalidInput)
	}
	defer iox.DiscardClose(j)

	recs, err := j.ListSessions(c.Context, journal.Filter{Day: day, Outcome: outcome, Limit: limit})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read journal: %v", err), exitFatal)
	}

	if c.Bool("tui") {
		recent := recs
		if len(recent) > recentInSummary {
			recent = recent[:recentInSummary]
		}
		return tui.RunSummary(journal.Summarize(recs), recent)
	}

	r, err := newRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	if c.Bool("stats") {
		resp := StatsResponse{Summary: journal.Summarize(recs)}
		latest, err := j.LatestMetrics(c.Context)
		switch {
		case err == nil:
			resp.Metrics = latest
		case !errors.Is(err, journal.ErrNoMetricsFound):
			return cli.Exit(fmt.Sprintf("failed to read metrics: %v", err), exitFatal)
		}
		return r.Render(resp)
	}

	if limit == 0 && len(recs) > largeResultWarning && isStderrTTY() {
		fmt.Fprintf(c.App.ErrWriter, "%d sessions; use --limit or --day to narrow the listing\n", len(recs))
	}

	if r.Format() == render.FormatTable {
		rows := make([]HistoryRow, len(recs))
		for i, rec := range recs {
			rows[i] = HistoryRow{rec: rec}
		}
		return r.Render(rows)
	}
	if recs == nil {
		recs = []journal.SessionRecord{}
	}
	return r.Render(recs)
}
