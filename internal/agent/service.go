package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dotcommander/toolchat/internal/calc"
	"github.com/dotcommander/toolchat/internal/config"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/logging"
	"github.com/dotcommander/toolchat/internal/mcp"
	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/router"
	"github.com/dotcommander/toolchat/internal/stream"
)

// Service answers conversations. It routes the latest user message first and
// only falls back to the agent loop when the router defers or forces a
// search whose result the model has to summarise.
type Service struct {
	cfg    *config.Config
	tools  Invoker
	client stream.Client
	logger *log.Logger

	systemOnce sync.Once
	system     string
	systemErr  error
}

// New creates an agent service.
func New(cfg *config.Config, tools Invoker, client stream.Client, logger *log.Logger) *Service {
	return &Service{
		cfg:    cfg,
		tools:  tools,
		client: client,
		logger: logging.OrDiscard(logger).WithPrefix("agent"),
	}
}

// Request is one conversation to answer. Zero fields fall back to the
// configured defaults.
type Request struct {
	Messages    []proto.Message
	Model       string
	Temperature *float64
	MaxTokens   *int64
}

// Reply is a finished answer.
type Reply struct {
	Content      string
	Route        router.Route
	Invocations  []mcp.Invocation
	Iterations   int
	Conversation proto.Conversation
}

// Answer produces the whole answer at once.
func (s *Service) Answer(ctx context.Context, req Request) (Reply, error) {
	return s.run(ctx, req, nil)
}

// Stream produces the answer incrementally. The source ends with the error
// of a failed run, whose reason is safe to show to users.
func (s *Service) Stream(ctx context.Context, req Request) stream.Source {
	return stream.Pipe(ctx, func(ctx context.Context, emit func(string) error) error {
		_, err := s.run(ctx, req, emit)
		return err
	})
}

// LoadSystemPrompt resolves the configured system prompt once.
func (s *Service) LoadSystemPrompt(ctx context.Context) error {
	s.systemOnce.Do(func() {
		if s.cfg.System == "" {
			return
		}
		s.system, s.systemErr = config.LoadSystemPrompt(ctx, s.cfg.System)
		if s.systemErr != nil {
			s.systemErr = errs.Wrap(s.systemErr, "Could not load the system prompt.")
		}
	})
	return s.systemErr
}

func (s *Service) run(ctx context.Context, req Request, sink Sink) (Reply, error) {
	conv, err := s.conversation(ctx, req.Messages)
	if err != nil {
		return Reply{}, err
	}

	route := router.Classify(conv.LastUser())
	reply := Reply{Route: route}
	s.logger.Debug("routed", "kind", route.Kind, "tool", route.Tool)

	switch route.Kind {
	case router.LocalCompute:
		inv, answer := s.compute(ctx, route)
		if inv != nil {
			reply.Invocations = append(reply.Invocations, *inv)
		}
		reply.Content = answer
		reply.Conversation = append(conv, proto.Message{Role: proto.RoleAssistant, Content: answer})
		if sink != nil {
			if err := sink(answer); err != nil {
				return reply, err
			}
		}
		return reply, nil

	case router.ForceTool:
		inv, invErr := s.tools.Invoke(ctx, route.Tool, route.Args)
		if ctx.Err() != nil {
			return reply, ctx.Err()
		}
		if invErr != nil {
			s.logger.Warn("forced tool call failed", "tool", route.Tool, "kind", errs.KindOf(invErr), "err", invErr)
			if inv.Tool == "" {
				inv.Tool = route.Tool
			}
			if inv.Arguments == nil {
				inv.Arguments = route.Args
			}
		}
		reply.Invocations = append(reply.Invocations, inv)
		conv, err = synthesizeCall(conv, inv, invErr)
		if err != nil {
			return reply, err
		}

	case router.Defer:
	}

	loop := &Loop{
		Model:         s.client,
		Tools:         s.tools,
		MaxIterations: s.cfg.MaxIterations,
		API:           s.cfg.API,
		Logger:        s.logger,
	}
	res, err := loop.Run(ctx, s.request(req, conv), sink)
	reply.Content = res.Answer
	reply.Invocations = append(reply.Invocations, res.Invocations...)
	reply.Iterations = res.Iterations
	reply.Conversation = res.Conversation
	return reply, err
}

// compute answers an arithmetic route. The calculate tool is preferred; the
// local evaluator is used when no provider hosts it.
func (s *Service) compute(ctx context.Context, route router.Route) (*mcp.Invocation, string) {
	inv, err := s.tools.Invoke(ctx, route.Tool, route.Args)
	switch {
	case err == nil:
		return &inv, fmt.Sprintf("%s = %s", route.Expression, inv.Result)
	case errs.IsKind(err, errs.KindToolNotFound):
		v, evalErr := calc.Eval(route.Expression)
		if evalErr != nil {
			return nil, computeFailure(route.Expression, evalErr)
		}
		return nil, fmt.Sprintf("%s = %s", route.Expression, calc.Format(v))
	default:
		s.logger.Warn("calculate failed", "expression", route.Expression, "err", err)
		return &inv, computeFailure(route.Expression, err)
	}
}

func computeFailure(expr string, err error) string {
	var e errs.Error
	if errors.As(err, &e) && e.Err != nil {
		err = e.Err
	}
	return fmt.Sprintf("I couldn't calculate %s: %s", expr, err)
}

func (s *Service) conversation(ctx context.Context, messages []proto.Message) (proto.Conversation, error) {
	if len(messages) == 0 {
		return nil, errs.Wrap(errs.UserErrorf("no messages"), "The conversation is empty.")
	}
	conv := proto.Conversation(messages)
	if err := conv.Validate(); err != nil {
		return nil, errs.Wrap(err, "The conversation is malformed.")
	}
	if err := s.LoadSystemPrompt(ctx); err != nil {
		return nil, err
	}
	if s.system != "" && messages[0].Role != proto.RoleSystem {
		conv = append(proto.Conversation{{Role: proto.RoleSystem, Content: s.system}}, conv...)
	} else {
		conv = append(proto.Conversation(nil), conv...)
	}
	return conv, nil
}

func (s *Service) request(req Request, conv proto.Conversation) proto.Request {
	out := proto.Request{
		Messages:    conv,
		API:         s.cfg.API,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if out.Model == "" {
		out.Model = s.cfg.Model
	}
	if out.Temperature == nil {
		t := s.cfg.Temperature
		out.Temperature = &t
	}
	if out.MaxTokens == nil {
		n := s.cfg.MaxTokens
		out.MaxTokens = &n
	}
	return out
}
