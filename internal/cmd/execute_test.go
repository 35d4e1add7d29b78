package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/toolchat/internal/config"
)

func TestRunRoot(t *testing.T) {
	tests := map[string]struct {
		args    []string
		status  int
		drained bool
		stderr  string
	}{
		"manual page": {
			args:   []string{"man"},
			status: exitOK,
		},
		"unknown flag": {
			args:    []string{"--nope"},
			status:  exitUsage,
			drained: true,
			stderr:  "--nope",
		},
		"unknown subcommand flag": {
			args:    []string{"config", "--nope"},
			status:  exitUsage,
			drained: true,
			stderr:  "--nope",
		},
		"unknown command": {
			args:    []string{"frobnicate"},
			status:  exitError,
			drained: true,
			stderr:  "frobnicate",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			root := NewRootCmd(BuildInfo{}, config.Default(), nil)
			root.SetArgs(tc.args)
			root.SetOut(&bytes.Buffer{})

			var stderr bytes.Buffer
			drained := false
			status := runRoot(root, &stderr, func() { drained = true })

			require.Equal(t, tc.status, status)
			require.Equal(t, tc.drained, drained)
			require.Contains(t, stderr.String(), tc.stderr)
			if tc.status == exitOK {
				require.Empty(t, stderr.String())
			}
		})
	}
}

func TestManualPage(t *testing.T) {
	page, err := manualPage(NewRootCmd(BuildInfo{}, config.Default(), nil))
	require.NoError(t, err)

	last := -1
	for _, heading := range []string{"TOOL PROVIDERS", "ROUTING", "ENVIRONMENT", "EXIT STATUS"} {
		at := strings.Index(page, heading)
		require.Greater(t, at, last, heading)
		last = at
	}
	require.Contains(t, page, "calculator")
}
