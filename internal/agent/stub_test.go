package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/registry"
	"github.com/dotcommander/toolchat/internal/stream"
)

// turn is one scripted model response.
type turn struct {
	chunks []string
	calls  []proto.ToolCall
	err    error
}

type stubClient struct {
	mu       sync.Mutex
	turns    []turn
	requests []proto.Request
}

func (c *stubClient) Request(_ context.Context, req proto.Request) stream.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	t := turn{chunks: []string{"out of script"}}
	if len(c.turns) > 0 {
		t, c.turns = c.turns[0], c.turns[1:]
	}
	return &stubStream{turn: t}
}

func (c *stubClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type stubStream struct {
	turn
	pos    int
	closed bool
}

func (s *stubStream) Next() bool {
	if s.closed || s.pos >= len(s.chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *stubStream) Current() (proto.Chunk, error) {
	return proto.Chunk{Content: s.chunks[s.pos-1]}, nil
}

func (s *stubStream) Err() error   { return s.err }
func (s *stubStream) Close() error { s.closed = true; return nil }

func (s *stubStream) Message() proto.Message {
	content := ""
	for _, c := range s.chunks {
		content += c
	}
	return proto.Message{Role: proto.RoleAssistant, Content: content, ToolCalls: s.calls}
}

func toolCall(id, name string, args map[string]any) proto.ToolCall {
	bts, _ := json.Marshal(args)
	return proto.ToolCall{ID: id, Function: proto.Function{Name: name, Arguments: bts}}
}

// stubTools hosts tools implemented as plain functions.
type stubTools struct {
	mu      sync.Mutex
	tools   map[string]func(map[string]any) (string, error)
	invoked []string
}

func (s *stubTools) Tools() []registry.ToolDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.ToolDescriptor, 0, len(s.tools))
	for name := range s.tools {
		out = append(out, registry.ToolDescriptor{Name: name, ProviderID: "stub"})
	}
	return out
}

func (s *stubTools) Invoke(_ context.Context, name string, args map[string]any) (mcp.Invocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoked = append(s.invoked, name)
	inv := mcp.Invocation{ID: name + "-1", Tool: name, Provider: "stub", Arguments: args, StartedAt: time.Now()}
	fn, ok := s.tools[name]
	if !ok {
		inv.Err = errs.New(errs.KindToolNotFound, registry.ErrToolNotFound, "Tool "+name+" is not available.")
		return inv, inv.Err
	}
	out, err := fn(args)
	inv.CompletedAt = time.Now()
	if err != nil {
		inv.Err = errs.New(errs.KindToolExecution, err, "Tool "+name+" failed.")
		return inv, inv.Err
	}
	inv.Result = out
	return inv, nil
}

func (s *stubTools) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.invoked...)
}
