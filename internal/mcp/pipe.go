package mcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/dotcommander/toolchat/internal/logging"
)

// NewPipeChannel returns a channel that spawns command and speaks to it over
// its standard input and output. Stderr lines are logged at debug level.
func NewPipeChannel(command string, args, env []string, version string, logger *log.Logger) Channel {
	logger = logging.OrDiscard(logger)
	p := &pipeProcess{}
	c := &clientChannel{
		kind:    "stdio",
		version: version,
		logger:  logger,
		kill:    p.kill,
	}
	c.dial = func(context.Context) (*client.Client, error) {
		cli, err := client.NewStdioMCPClientWithOptions(
			command,
			env,
			args,
			transport.WithCommandFunc(p.command),
		)
		if err != nil {
			return nil, err
		}
		if stderr, ok := client.GetStderr(cli); ok {
			go drainStderr(stderr, logger)
		}
		return cli, nil
	}
	return c
}

// pipeProcess captures the spawned process so it can be killed.
type pipeProcess struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

func (p *pipeProcess) command(_ context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
	// Not bound to a context: the process lives until Close or Kill.
	cmd := exec.Command(command, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), env...)
	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	return cmd, nil
}

func (p *pipeProcess) kill() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func drainStderr(r io.Reader, logger *log.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("stderr", "line", scanner.Text())
	}
}
