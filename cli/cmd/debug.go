package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/overdub/cli/config"
	"github.com/justapithecus/overdub/cli/render"
	"github.com/justapithecus/overdub/iox"
	"github.com/justapithecus/overdub/ipc"
	"github.com/justapithecus/overdub/log"
	"github.com/justapithecus/overdub/types"
)

// DebugCommand returns the debug command group.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Debugging utilities",
		Subcommands: []*cli.Command{
			{
				Name:      "events",
				Usage:     "Decode a captured --events ipc stream",
				ArgsUsage: "<file|->",
				Flags:     []cli.Flag{FormatFlag, LogLevelFlag},
				Action:    debugEventsAction,
			},
		},
	}
}

// EventRow is the table view of one event stream frame.
type EventRow struct {
	env *types.EventEnvelope
}

// TableHeader implements render.Row.
func (EventRow) TableHeader() []string {
	return []string{"SEQ", "TYPE", "TS", "STAGE", "OUTCOME", "RESULT", "ERROR"}
}

// TableRow implements render.Row.
func (r EventRow) TableRow() []string {
	row := []string{fmt.Sprint(r.env.Seq), string(r.env.Type), r.env.Ts, string(r.env.Stage), "", "", ""}
	if res := r.env.Result; res != nil {
		row[4] = string(res.Outcome)
		row[5] = res.ResultID
		row[6] = res.ErrorCode
	}
	return row
}

func debugEventsAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: overdub debug events <file|->", exitInvalidInput)
	}

	var in io.Reader
	if path := c.Args().First(); path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open stream: %v", err), exitInvalidInput)
		}
		defer iox.DiscardClose(f)
		in = f
	}

	r, err := newRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	level, err := resolveLogLevel(c.String("log-level"), &config.Config{})
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	logger := log.New(c.App.ErrWriter, level)
	defer iox.DiscardErr(logger.Sync)

	envs, err := decodeEvents(in, logger.Sugar().With("stream", c.Args().First()))
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	if r.Format() == render.FormatTable {
		rows := make([]EventRow, len(envs))
		for i, env := range envs {
			rows[i] = EventRow{env: env}
		}
		return r.Render(rows)
	}
	return r.Render(envs)
}

// decodeEvents reads envelopes until the stream ends. Invalid envelopes are
// logged and skipped; broken framing stops decoding.
func decodeEvents(in io.Reader, logger *log.SugaredLogger) ([]*types.EventEnvelope, error) {
	dec := ipc.NewFrameDecoder(in)
	envs := []*types.EventEnvelope{}
	for frame := 1; ; frame++ {
		env, err := dec.ReadEnvelope()
		if errors.Is(err, io.EOF) {
			logger.Infof("decoded %d events from %d frames", len(envs), frame-1)
			return envs, nil
		}
		if err != nil {
			if ipc.IsFatalFrameError(err) {
				return envs, fmt.Errorf("event stream broken after %d events: %w", len(envs), err)
			}
			logger.Warnf("skipping frame %d: %v", frame, err)
			continue
		}
		logger.Debugf("frame %d: seq=%d type=%s", frame, env.Seq, env.Type)
		envs = append(envs, env)
	}
}
