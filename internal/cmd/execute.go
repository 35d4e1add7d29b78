package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/toolchat/internal/config"
)

// Exit statuses.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Execute runs the toolchat command tree against the process arguments and
// returns the exit status for main to hand to os.Exit.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) int {
	defer maybeWriteMemProfile()
	return runRoot(NewRootCmd(build, cfg, cfgErr), os.Stderr, drainStdin)
}

// runRoot executes root and reports a failure on stderr. Unread piped input
// is consumed through drain so the writer upstream is not left blocked.
func runRoot(root *cobra.Command, stderr io.Writer, drain func()) int {
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	drain()
	handleError(stderr, err)

	var ferr flagParseError
	if errors.As(err, &ferr) {
		return exitUsage
	}
	return exitError
}
