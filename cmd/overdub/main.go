// Package main provides the overdub CLI entrypoint.
//
// Usage:
//
//	overdub <command> [subcommand] [options]
//
// Exit codes for `edit`:
//   - 0: success, the edited video is ready
//   - 1: fatal error (connection, protocol or unclassified server error)
//   - 2: the music could not be located in the gameplay video
//   - 3: the YouTube video could not be downloaded
//   - 4: invalid input (video link, file, flags or config)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/overdub/cli/cmd"
	"github.com/justapithecus/overdub/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "overdub",
		Usage:          "Replace the audio of gameplay videos with YouTube music",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.EditCommand(),
			cmd.HistoryCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler prints the error and exits with the code it carries.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(report(os.Stderr, err))
}

// report writes the user-facing message for err to w and returns the exit
// code. Errors without an exit code are fatal.
func report(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
