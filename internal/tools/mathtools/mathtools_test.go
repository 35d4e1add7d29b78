package mathtools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestTools(t *testing.T) {
	ctx := context.Background()
	cli, err := client.NewInProcessClient(NewServer("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	require.NoError(t, cli.Start(ctx))
	_, err = cli.Initialize(ctx, mcp.InitializeRequest{})
	require.NoError(t, err)

	list, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"add", "subtract", "multiply", "divide", "power", "square_root", "calculate",
	}, names)

	tests := map[string]struct {
		tool    string
		args    map[string]any
		want    string
		wantErr bool
	}{
		"add":              {tool: "add", args: map[string]any{"a": 2, "b": 3}, want: "5"},
		"subtract":         {tool: "subtract", args: map[string]any{"a": 2, "b": 3}, want: "-1"},
		"multiply":         {tool: "multiply", args: map[string]any{"a": 1.5, "b": 4}, want: "6"},
		"divide":           {tool: "divide", args: map[string]any{"a": 7, "b": 2}, want: "3.5"},
		"divide by zero":   {tool: "divide", args: map[string]any{"a": 1, "b": 0}, want: "Cannot divide by zero", wantErr: true},
		"power":            {tool: "power", args: map[string]any{"base": 2, "exponent": 10}, want: "1024"},
		"square root":      {tool: "square_root", args: map[string]any{"x": 81}, want: "9"},
		"negative root":    {tool: "square_root", args: map[string]any{"x": -1}, want: "Cannot calculate square root of a negative number", wantErr: true},
		"calculate":        {tool: "calculate", args: map[string]any{"expression": "(3 + 5) * 12"}, want: "96"},
		"bad expression":   {tool: "calculate", args: map[string]any{"expression": "3 +"}, want: "unexpected end of expression", wantErr: true},
		"missing argument": {tool: "add", args: map[string]any{"a": 1}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			req := mcp.CallToolRequest{}
			req.Params.Name = tc.tool
			req.Params.Arguments = tc.args
			res, err := cli.CallTool(ctx, req)
			require.NoError(t, err)
			require.Equal(t, tc.wantErr, res.IsError)
			require.Len(t, res.Content, 1)
			require.Contains(t, mcp.GetTextFromContent(res.Content[0]), tc.want)
		})
	}
}
