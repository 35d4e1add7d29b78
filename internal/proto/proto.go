// Package proto holds the conversation types shared by the agent, the model
// client and the HTTP front end.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotcommander/toolchat/internal/registry"
)

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Function is the name and raw JSON arguments of a requested tool call.
type Function struct {
	Name      string `json:"name"`
	Arguments []byte `json:"arguments"`
}

// ToolCall is a tool invocation requested by the model. On tool turns it
// identifies which request the result answers.
type ToolCall struct {
	ID       string   `json:"id"`
	Function Function `json:"function"`
	IsError  bool     `json:"is_error,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func (m Message) String() string {
	var sb strings.Builder
	switch m.Role {
	case RoleSystem:
		sb.WriteString("**System**: ")
	case RoleUser:
		sb.WriteString("**Prompt**: ")
	case RoleAssistant:
		sb.WriteString("**Assistant**: ")
	case RoleTool:
		sb.WriteString("**Tool**: ")
	}
	sb.WriteString(m.Content)
	for _, call := range m.ToolCalls {
		fmt.Fprintf(&sb, "\n> %s(%s)", call.Function.Name, string(call.Function.Arguments))
	}
	return sb.String()
}

// Conversation is an ordered, append-only list of turns owned by one request.
type Conversation []Message

// Last returns the final turn, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// LastUser returns the content of the most recent user turn.
func (c Conversation) LastUser() string {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return c[i].Content
		}
	}
	return ""
}

// Validate reports whether every tool turn answers a call requested by an
// earlier assistant turn.
func (c Conversation) Validate() error {
	requested := map[string]struct{}{}
	for i, msg := range c {
		switch msg.Role {
		case RoleAssistant:
			for _, call := range msg.ToolCalls {
				requested[call.ID] = struct{}{}
			}
		case RoleTool:
			if len(msg.ToolCalls) == 0 {
				return fmt.Errorf("turn %d: tool result without a call id", i)
			}
			for _, call := range msg.ToolCalls {
				if _, ok := requested[call.ID]; !ok {
					return fmt.Errorf("turn %d: tool result %q has no matching request", i, call.ID)
				}
			}
		case RoleSystem, RoleUser:
		default:
			return fmt.Errorf("turn %d: unknown role %q", i, msg.Role)
		}
	}
	return nil
}

// Request is a single chat-completion request.
type Request struct {
	Messages    []Message
	API         string
	Model       string
	Temperature *float64
	MaxTokens   *int64
	Tools       []registry.ToolDescriptor
}

// Chunk is a piece of streamed assistant text.
type Chunk struct {
	Content string
}

// DecodeArguments parses raw tool-call arguments into a map. Empty input
// yields an empty map.
func DecodeArguments(raw []byte) (map[string]any, error) {
	args := map[string]any{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w: %s", err, string(raw))
	}
	return args, nil
}
