package tools_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/toolchat/internal/tools"
	"github.com/dotcommander/toolchat/internal/tools/mathtools"
)

func initialize(ctx context.Context, t *testing.T, cli *client.Client) {
	t.Helper()
	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "test"}
	_, err := cli.Initialize(ctx, init)
	require.NoError(t, err)
}

func callAdd(ctx context.Context, t *testing.T, cli *client.Client) string {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = "add"
	req.Params.Arguments = map[string]any{"a": 2, "b": 3}
	res, err := cli.CallTool(ctx, req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServeStdio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientToServer, serverIn := io.Pipe()
	serverOut, serverToClient := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- tools.ServeStdio(ctx, mathtools.NewServer("test"), clientToServer, serverToClient)
	}()

	cli := client.NewClient(transport.NewIO(serverOut, serverIn, io.NopCloser(&emptyReader{})))
	require.NoError(t, cli.Start(ctx))
	initialize(ctx, t, cli)

	list, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Tools, len(mathtools.Tools()))
	require.Equal(t, "5", callAdd(ctx, t, cli))

	// closing the server's stdin is a clean stop
	require.NoError(t, serverIn.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("stdio server did not stop after EOF")
	}
	_ = serverToClient.Close()
	_ = cli.Close()
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServeHTTP(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- tools.Serve(ctx, mathtools.NewServer("test"), addr, time.Second)
	}()

	cli, err := client.NewStreamableHttpClient("http://" + addr + "/mcp")
	require.NoError(t, err)

	callCtx, callCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer callCancel()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, cli.Start(callCtx))
	initialize(callCtx, t, cli)
	require.Equal(t, "5", callAdd(callCtx, t, cli))
	_ = cli.Close()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("http server did not stop")
	}
}

func TestServeHTTPBadAddress(t *testing.T) {
	err := tools.ServeHTTP(context.Background(), mathtools.NewServer("test"), "256.0.0.1:bad", time.Second)
	require.Error(t, err)
}
