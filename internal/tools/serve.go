// Package tools holds the bundled MCP tool servers and the plumbing to run
// them as standalone providers.
package tools

import (
	"context"
	"errors"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dotcommander/toolchat/internal/errs"
)

// Serve runs srv until ctx is cancelled: over stdio when listen is empty,
// otherwise as a streamable HTTP endpoint at listen + "/mcp".
func Serve(ctx context.Context, srv *server.MCPServer, listen string, grace time.Duration) error {
	if listen == "" {
		return ServeStdio(ctx, srv, os.Stdin, os.Stdout)
	}
	return ServeHTTP(ctx, srv, listen, grace)
}

// ServeStdio speaks MCP over in and out. EOF on in is a clean stop.
func ServeStdio(ctx context.Context, srv *server.MCPServer, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(srv)
	// stdout carries the protocol.
	stdio.SetErrorLogger(stdlog.New(os.Stderr, "", stdlog.LstdFlags))
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return errs.Wrap(err, "The tool server stopped unexpectedly.")
}

// ServeHTTP serves streamable HTTP on addr and shuts down within grace once
// ctx is done.
func ServeHTTP(ctx context.Context, srv *server.MCPServer, addr string, grace time.Duration) error {
	httpSrv := server.NewStreamableHTTPServer(srv)
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.Start(addr) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(err, "The tool server stopped unexpectedly.")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(err, "The tool server did not shut down cleanly.")
	}
	return nil
}
