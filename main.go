// Package main provides the toolchat CLI.
package main

import (
	"os"

	"github.com/dotcommander/toolchat/internal/cmd"
	"github.com/dotcommander/toolchat/internal/config"
)

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
)

func main() {
	cfg, cfgErr := config.Ensure()
	os.Exit(cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA}, cfg, cfgErr))
}
