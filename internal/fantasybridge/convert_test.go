package fantasybridge

import (
	"errors"
	"testing"

	"charm.land/fantasy"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/registry"
)

func TestPromptFor(t *testing.T) {
	messages := []proto.Message{
		{Role: proto.RoleSystem, Content: "sys"},
		{Role: proto.RoleUser, Content: "hello"},
		{Role: proto.RoleAssistant, Content: "calling tool", ToolCalls: []proto.ToolCall{{
			ID: "call_1",
			Function: proto.Function{
				Name:      "web_search",
				Arguments: []byte(`{"x":1}`),
			},
		}}},
		{Role: proto.RoleTool, Content: "ok", ToolCalls: []proto.ToolCall{{ID: "call_1"}}},
		{Role: proto.RoleTool, Content: "boom", ToolCalls: []proto.ToolCall{{ID: "call_2", IsError: true}}},
	}

	prompt := promptFor(messages)
	require.Len(t, prompt, 5)

	require.Equal(t, fantasy.MessageRoleSystem, prompt[0].Role)
	require.Equal(t, fantasy.MessageRoleUser, prompt[1].Role)
	require.Equal(t, fantasy.MessageRoleAssistant, prompt[2].Role)
	require.Equal(t, fantasy.MessageRoleTool, prompt[3].Role)
	require.Equal(t, fantasy.MessageRoleTool, prompt[4].Role)

	resultPart, ok := fantasy.AsMessagePart[fantasy.ToolResultPart](prompt[3].Content[0])
	require.True(t, ok)
	_, textOK := fantasy.AsToolResultOutputType[fantasy.ToolResultOutputContentText](resultPart.Output)
	require.True(t, textOK)

	errPart, ok := fantasy.AsMessagePart[fantasy.ToolResultPart](prompt[4].Content[0])
	require.True(t, ok)
	errOutput, errOK := fantasy.AsToolResultOutputType[fantasy.ToolResultOutputContentError](errPart.Output)
	require.True(t, errOK)
	require.Equal(t, errors.New("boom").Error(), errOutput.Error.Error())
}

func TestPromptForDropsEmptyTurns(t *testing.T) {
	prompt := promptFor([]proto.Message{
		{Role: proto.RoleUser, Content: "add 2 and 3"},
		{Role: proto.RoleAssistant},
		{Role: proto.RoleTool, Content: "orphan"},
		{Role: "narrator", Content: "ignored"},
		{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{{
			ID:       "call_1",
			Function: proto.Function{Name: "add", Arguments: []byte(`{"a":2,"b":3}`)},
		}}},
	})
	require.Len(t, prompt, 2)
	require.Equal(t, fantasy.MessageRoleUser, prompt[0].Role)
	require.Equal(t, fantasy.MessageRoleAssistant, prompt[1].Role)
	require.Len(t, prompt[1].Content, 1)

	call, ok := fantasy.AsMessagePart[fantasy.ToolCallPart](prompt[1].Content[0])
	require.True(t, ok)
	require.Equal(t, "add", call.ToolName)
	require.JSONEq(t, `{"a":2,"b":3}`, call.Input)
}

func TestToolsFor(t *testing.T) {
	d, err := registry.NewDescriptor("search", mcp.Tool{
		Name:        "web_search",
		Description: "search the web",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query":       map[string]any{"type": "string"},
				"max_results": map[string]any{"type": "integer", "default": 5},
			},
			Required: []string{"query"},
		},
	})
	require.NoError(t, err)

	tools, choice := toolsFor(proto.Request{Tools: []registry.ToolDescriptor{d}})
	require.Len(t, tools, 1)
	require.NotNil(t, choice)
	require.Equal(t, fantasy.ToolChoiceAuto, *choice)
	fn, ok := tools[0].(fantasy.FunctionTool)
	require.True(t, ok)
	require.Equal(t, "web_search", fn.Name)
	require.Equal(t, "search the web", fn.Description)
	require.Equal(t, "object", fn.InputSchema["type"])
	require.Equal(t, []any{"query"}, fn.InputSchema["required"])
	require.Contains(t, fn.InputSchema["properties"], "max_results")
}

func TestToolsForWithoutCatalog(t *testing.T) {
	tools, choice := toolsFor(proto.Request{})
	require.Nil(t, tools)
	require.Nil(t, choice)
}
