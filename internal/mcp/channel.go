package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientName is reported to providers during the handshake.
const ClientName = "toolchat"

var (
	// ErrChannelClosed is returned by Call after Close or Kill.
	ErrChannelClosed = errors.New("channel closed")
	// ErrToolRejected wraps JSON-RPC error responses: the provider answered,
	// the tool did not.
	ErrToolRejected = errors.New("tool call rejected")
)

// rpcErrors are the JSON-RPC error codes a tool handler can produce.
var rpcErrors = []error{
	mcp.ErrParseError,
	mcp.ErrInvalidRequest,
	mcp.ErrMethodNotFound,
	mcp.ErrInvalidParams,
	mcp.ErrInternalError,
	mcp.ErrResourceNotFound,
}

// IsToolRejected reports whether err is an error response from a provider
// that is still reachable.
func IsToolRejected(err error) bool {
	if errors.Is(err, ErrToolRejected) {
		return true
	}
	for _, target := range rpcErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Channel is a bidirectional request/response link to one tool provider.
//
// Open starts the provider, performs the protocol handshake and returns its
// tool catalog. Close is idempotent. Kill terminates the provider without
// waiting for it.
type Channel interface {
	Open(ctx context.Context) ([]mcp.Tool, error)
	Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
	Kill() error
}

// clientChannel drives a provider through an mcp-go client. Transports only
// differ in how the client is dialled and, for processes, how they are killed.
type clientChannel struct {
	kind    string
	version string
	logger  *log.Logger
	dial    func(ctx context.Context) (*client.Client, error)
	kill    func() error

	mu     sync.Mutex
	cli    *client.Client
	cancel context.CancelFunc
	closed bool

	closeOnce sync.Once
	closeErr  error
}

func (c *clientChannel) Open(ctx context.Context) ([]mcp.Tool, error) {
	cli, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", c.kind, err)
	}

	// Streaming transports tie their connection to the Start context, so it
	// must outlive ctx once the handshake has succeeded.
	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		_ = cli.Close()
		return nil, ErrChannelClosed
	}
	c.cli = cli
	c.cancel = cancel
	c.mu.Unlock()

	if err := cli.Start(life); err != nil {
		return nil, fmt.Errorf("failed to start %s client: %w", c.kind, err)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: c.version}
	if _, err := cli.Initialize(ctx, init); err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", c.kind, err)
	}

	tools, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug("handshake complete", "transport", c.kind, "tools", len(tools.Tools))
	return tools.Tools, nil
}

func (c *clientChannel) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	cli, closed := c.cli, c.closed
	c.mu.Unlock()
	if closed || cli == nil {
		return nil, ErrChannelClosed
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args
	result, err := cli.CallTool(ctx, request)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) || ctx.Err() != nil {
			return nil, fmt.Errorf("call %s: %w", name, err)
		}
		return nil, fmt.Errorf("call %s: %w: %w", name, ErrToolRejected, err)
	}
	return result, nil
}

func (c *clientChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		cli, cancel := c.cli, c.cancel
		c.mu.Unlock()
		if cli != nil {
			c.closeErr = cli.Close()
		}
		if cancel != nil {
			cancel()
		}
	})
	return c.closeErr
}

func (c *clientChannel) Kill() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.kill != nil {
		return c.kill()
	}
	return nil
}
