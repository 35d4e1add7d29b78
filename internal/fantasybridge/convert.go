// Package fantasybridge adapts charm.land/fantasy language models to the
// stream.Client boundary.
package fantasybridge

import (
	"errors"

	"charm.land/fantasy"

	"github.com/dotcommander/toolchat/internal/proto"
)

// promptFor maps each conversation turn onto one fantasy message. Turns
// that carry nothing the model can read are dropped.
func promptFor(conv []proto.Message) fantasy.Prompt {
	prompt := make(fantasy.Prompt, 0, len(conv))
	for _, turn := range conv {
		role, parts := turnParts(turn)
		if len(parts) == 0 {
			continue
		}
		prompt = append(prompt, fantasy.Message{Role: role, Content: parts})
	}
	return prompt
}

func turnParts(turn proto.Message) (fantasy.MessageRole, []fantasy.MessagePart) {
	switch turn.Role {
	case proto.RoleSystem:
		return fantasy.MessageRoleSystem, []fantasy.MessagePart{fantasy.TextPart{Text: turn.Content}}
	case proto.RoleUser:
		return fantasy.MessageRoleUser, []fantasy.MessagePart{fantasy.TextPart{Text: turn.Content}}
	case proto.RoleAssistant:
		return fantasy.MessageRoleAssistant, requestedCalls(turn)
	case proto.RoleTool:
		return fantasy.MessageRoleTool, toolResults(turn)
	default:
		return "", nil
	}
}

// requestedCalls is the assistant's text, if any, followed by the tool calls
// it asked for.
func requestedCalls(turn proto.Message) []fantasy.MessagePart {
	parts := make([]fantasy.MessagePart, 0, 1+len(turn.ToolCalls))
	if turn.Content != "" {
		parts = append(parts, fantasy.TextPart{Text: turn.Content})
	}
	for _, call := range turn.ToolCalls {
		parts = append(parts, fantasy.ToolCallPart{
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
			Input:      string(call.Function.Arguments),
		})
	}
	return parts
}

// toolResults answers the calls a tool turn refers to with the turn's text.
// Failed invocations are reported as error output so the model can react.
func toolResults(turn proto.Message) []fantasy.MessagePart {
	parts := make([]fantasy.MessagePart, 0, len(turn.ToolCalls))
	for _, call := range turn.ToolCalls {
		var output fantasy.ToolResultOutputContent = fantasy.ToolResultOutputContentText{Text: turn.Content}
		if call.IsError {
			output = fantasy.ToolResultOutputContentError{Error: errors.New(turn.Content)}
		}
		parts = append(parts, fantasy.ToolResultPart{ToolCallID: call.ID, Output: output})
	}
	return parts
}

// toolsFor advertises the request's tool catalog. The model picks freely
// among them; a request without tools sets no choice at all.
func toolsFor(request proto.Request) ([]fantasy.Tool, *fantasy.ToolChoice) {
	if len(request.Tools) == 0 {
		return nil, nil
	}
	tools := make([]fantasy.Tool, 0, len(request.Tools))
	for _, d := range request.Tools {
		tools = append(tools, fantasy.FunctionTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema(),
		})
	}
	choice := fantasy.ToolChoiceAuto
	return tools, &choice
}
