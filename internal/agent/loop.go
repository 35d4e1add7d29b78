package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/logging"
	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/registry"
	"github.com/dotcommander/toolchat/internal/stream"
)

// DefaultMaxIterations bounds the number of model turns in one loop.
const DefaultMaxIterations = 5

// Canned answers.
const (
	CeilingAnswer  = "I wasn't able to finish that within the allowed number of steps."
	FallbackAnswer = "Sorry, I had trouble answering that."
)

// Invoker executes tools on behalf of the loop. *mcp.Service implements it.
type Invoker interface {
	Tools() []registry.ToolDescriptor
	Invoke(ctx context.Context, name string, args map[string]any) (mcp.Invocation, error)
}

var _ Invoker = (*mcp.Service)(nil)

// Sink receives answer text as the model produces it. Returning an error
// stops the loop.
type Sink func(delta string) error

// Result is the outcome of a loop run.
type Result struct {
	Answer       string
	Conversation proto.Conversation
	Invocations  []mcp.Invocation
	Iterations   int
}

// Loop alternates between the model and the tools until the model answers
// without requesting tools, or the iteration ceiling is reached.
type Loop struct {
	Model         stream.Client
	Tools         Invoker
	MaxIterations int
	API           string
	Logger        *log.Logger
}

// Run drives the conversation in req.Messages to a final answer.
//
// A model failure ends the run with FallbackAnswer and an error of kind
// errs.KindModelInference. Tool failures never end the run; they are handed
// back to the model as tool turns.
func (l *Loop) Run(ctx context.Context, req proto.Request, sink Sink) (Result, error) {
	logger := logging.OrDiscard(l.Logger)
	limit := l.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	res := Result{Conversation: append(proto.Conversation(nil), req.Messages...)}
	turns := turnSeparated(sink)
	for res.Iterations < limit {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations++

		msg, err := l.step(ctx, req, res.Conversation, turns())
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			var sinkErr sinkError
			if errors.As(err, &sinkErr) {
				return res, sinkErr.err
			}
			logger.Error("model request failed", "iteration", res.Iterations, "err", describeModelError(err, l.API))
			res.Answer = FallbackAnswer
			return res, modelError(err)
		}
		res.Conversation = append(res.Conversation, msg)

		if len(msg.ToolCalls) == 0 {
			res.Answer = msg.Content
			return res, nil
		}

		for _, call := range msg.ToolCalls {
			inv, turn := l.execute(ctx, call)
			if inv != nil {
				res.Invocations = append(res.Invocations, *inv)
			}
			res.Conversation = append(res.Conversation, turn)
		}
	}

	logger.Warn("iteration ceiling reached", "iterations", res.Iterations)
	res.Answer = CeilingAnswer
	if next := turns(); next != nil {
		if err := next(CeilingAnswer); err != nil {
			return res, err
		}
	}
	return res, nil
}

// turnSeparator goes between the text of consecutive model turns.
const turnSeparator = "\n\n"

// turnSeparated returns a factory of per-turn sinks. The first text of a
// turn is preceded by turnSeparator when an earlier turn already wrote text.
func turnSeparated(sink Sink) func() Sink {
	wrote := false
	return func() Sink {
		if sink == nil {
			return nil
		}
		first := true
		return func(delta string) error {
			if delta == "" {
				return sink(delta)
			}
			if first && wrote {
				if err := sink(turnSeparator); err != nil {
					return err
				}
			}
			first, wrote = false, true
			return sink(delta)
		}
	}
}

type sinkError struct{ err error }

func (e sinkError) Error() string { return e.err.Error() }
func (e sinkError) Unwrap() error { return e.err }

func (l *Loop) step(ctx context.Context, req proto.Request, conv proto.Conversation, sink Sink) (proto.Message, error) {
	req.Messages = conv
	req.Tools = l.Tools.Tools()

	st := l.Model.Request(ctx, req)
	defer func() { _ = st.Close() }()

	var emitErr error
	msg, err := stream.Drain(st, func(delta string) {
		if sink == nil || emitErr != nil {
			return
		}
		if emitErr = sink(delta); emitErr != nil {
			_ = st.Close()
		}
	})
	if emitErr != nil {
		return proto.Message{}, sinkError{emitErr}
	}
	if err != nil {
		return proto.Message{}, err
	}
	msg.Role = proto.RoleAssistant
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}
	return msg, nil
}

// execute runs one requested call and returns the tool turn answering it.
func (l *Loop) execute(ctx context.Context, call proto.ToolCall) (*mcp.Invocation, proto.Message) {
	logger := logging.OrDiscard(l.Logger)
	turn := proto.Message{
		Role:      proto.RoleTool,
		ToolCalls: []proto.ToolCall{{ID: call.ID, Function: proto.Function{Name: call.Function.Name}}},
	}

	args, err := proto.DecodeArguments(call.Function.Arguments)
	if err != nil {
		turn.Content = "Error: " + err.Error()
		turn.ToolCalls[0].IsError = true
		logger.Warn("undecodable tool arguments", "tool", call.Function.Name, "err", err)
		return nil, turn
	}

	inv, err := l.Tools.Invoke(ctx, call.Function.Name, args)
	if err != nil {
		turn.Content = "Error: " + err.Error()
		turn.ToolCalls[0].IsError = true
		logger.Warn("tool call failed", "tool", call.Function.Name, "kind", errs.KindOf(err), "err", err)
		return &inv, turn
	}
	turn.Content = inv.Result
	logger.Debug("tool call", "tool", inv.Tool, "provider", inv.Provider, "took", inv.CompletedAt.Sub(inv.StartedAt))
	return &inv, turn
}

// synthesizeCall folds a tool call made outside the model into conv as an
// assistant turn requesting it followed by the tool turn answering it.
func synthesizeCall(conv proto.Conversation, inv mcp.Invocation, invErr error) (proto.Conversation, error) {
	args, err := json.Marshal(inv.Arguments)
	if err != nil {
		return conv, fmt.Errorf("encode tool arguments: %w", err)
	}
	id := "call_" + uuid.NewString()
	call := proto.ToolCall{ID: id, Function: proto.Function{Name: inv.Tool, Arguments: args}}
	result := proto.Message{
		Role:      proto.RoleTool,
		Content:   inv.Result,
		ToolCalls: []proto.ToolCall{{ID: id, Function: proto.Function{Name: inv.Tool}}},
	}
	if invErr != nil {
		result.Content = "Error: " + invErr.Error()
		result.ToolCalls[0].IsError = true
	}
	return append(conv,
		proto.Message{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{call}},
		result,
	), nil
}
