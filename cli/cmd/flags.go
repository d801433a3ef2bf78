// Package cmd provides CLI commands for the overdub binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/overdub/cli/render"
)

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode",
	}

	// ConfigFlag points at a YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML config file",
		EnvVars: []string{"OVERDUB_CONFIG"},
	}

	// LogLevelFlag overrides the configured log level.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error (default warn)",
	}
)

// journalFlags select where finished sessions are journaled.
// They override the journal section of the config file.
func journalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "journal-backend",
			Usage: "Journal storage backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "journal-path",
			Usage: "Journal storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "journal-s3-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "journal-s3-endpoint",
			Usage: "Custom S3 endpoint URL (R2, MinIO, LocalStack)",
		},
		&cli.BoolFlag{
			Name:  "journal-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// ReadOnlyFlags returns the shared flags for commands that only render data.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, TUIFlag}
}

// newRenderer creates a renderer writing to the app's writer.
func newRenderer(c *cli.Context) (*render.Renderer, error) {
	return render.New(c.String("format"), c.App.Writer)
}

// isStderrTTY returns true if stderr is a terminal.
func isStderrTTY() bool {
	return render.IsTerminal(os.Stderr)
}
