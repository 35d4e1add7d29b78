package mcp

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dotcommander/toolchat/internal/logging"
)

// NewHTTPChannel returns a channel to a streamable HTTP endpoint.
func NewHTTPChannel(url, version string, logger *log.Logger) Channel {
	logger = logging.OrDiscard(logger)
	c := &clientChannel{kind: "http", version: version, logger: logger}
	c.dial = func(context.Context) (*client.Client, error) {
		return client.NewStreamableHttpClient(url)
	}
	return c
}

// NewSSEChannel returns a channel to a server-sent events endpoint.
func NewSSEChannel(url, version string, logger *log.Logger) Channel {
	logger = logging.OrDiscard(logger)
	c := &clientChannel{kind: "sse", version: version, logger: logger}
	c.dial = func(context.Context) (*client.Client, error) {
		return client.NewSSEMCPClient(url)
	}
	return c
}

// NewBuiltinChannel returns a channel to a server hosted in this process.
func NewBuiltinChannel(srv *server.MCPServer, version string, logger *log.Logger) Channel {
	logger = logging.OrDiscard(logger)
	c := &clientChannel{kind: "builtin", version: version, logger: logger}
	c.dial = func(context.Context) (*client.Client, error) {
		return client.NewInProcessClient(srv)
	}
	return c
}
