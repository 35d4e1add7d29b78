package fantasybridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"charm.land/fantasy"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dotcommander/toolchat/internal/logging"
	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/stream"
)

var _ stream.Client = &Client{}

const (
	apiAnthropic = "anthropic"
	apiOpenAI    = "openai"
	apiGroq      = "groq"
)

// Config represents provider configuration used by the fantasy bridge.
type Config struct {
	API        string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client is a stream.Client backed by charm.land/fantasy.
type Client struct {
	provider fantasy.Provider
	config   Config
	logger   *log.Logger
}

// New creates a new Fantasy-backed stream client.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		provider: provider,
		config:   cfg,
		logger:   logging.OrDiscard(cfg.Logger).WithPrefix("model"),
	}, nil
}

// Request implements stream.Client. Every request is a single model turn;
// tool execution is left to the caller.
func (c *Client) Request(ctx context.Context, request proto.Request) stream.Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ctx:          streamCtx,
		cancel:       cancel,
		provider:     c.provider,
		request:      request,
		logger:       c.logger,
		toolCallSeen: map[string]struct{}{},
		warningSeen:  map[string]struct{}{},
	}
	if err := s.start(); err != nil {
		s.err = err
		cancel()
	}
	return s
}

// Stream is a stream.Stream implementation backed by fantasy stream events.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider fantasy.Provider
	request  proto.Request
	logger   *log.Logger

	mu sync.Mutex

	partCh chan fantasy.StreamPart
	last   fantasy.StreamPart
	err    error
	done   bool

	text         strings.Builder
	toolCalls    []proto.ToolCall
	toolCallSeen map[string]struct{}
	warningSeen  map[string]struct{}
}

// Next implements stream.Stream.
func (s *Stream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil || s.done || s.partCh == nil {
		return false
	}

	part, ok := <-s.partCh
	if !ok {
		s.done = true
		if err := s.ctx.Err(); err != nil && s.err == nil {
			s.err = err
		}
		return false
	}

	s.last = part
	s.consumePart(part)
	return s.err == nil
}

// Current implements stream.Stream.
func (s *Stream) Current() (proto.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.last.Type {
	case fantasy.StreamPartTypeTextDelta:
		return proto.Chunk{Content: s.last.Delta}, nil
	case fantasy.StreamPartTypeError:
		if s.last.Error != nil {
			return proto.Chunk{}, s.last.Error
		}
	}
	return proto.Chunk{}, stream.ErrNoContent
}

// Close implements stream.Stream.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}

// Err implements stream.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Message implements stream.Stream.
func (s *Stream) Message() proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return proto.Message{
		Role:      proto.RoleAssistant,
		Content:   s.text.String(),
		ToolCalls: append([]proto.ToolCall(nil), s.toolCalls...),
	}
}

func (s *Stream) start() error {
	model, err := s.provider.LanguageModel(s.ctx, s.request.Model)
	if err != nil {
		return fmt.Errorf("fantasy language model: %w", err)
	}

	seq, err := model.Stream(s.ctx, s.buildCall())
	if err != nil {
		return fmt.Errorf("fantasy stream: %w", err)
	}

	s.partCh = make(chan fantasy.StreamPart, 64)
	go func() {
		defer close(s.partCh)
		for part := range seq {
			select {
			case <-s.ctx.Done():
				return
			case s.partCh <- part:
			}
		}
	}()
	return nil
}

func (s *Stream) buildCall() fantasy.Call {
	tools, choice := toolsFor(s.request)
	return fantasy.Call{
		Prompt:          promptFor(s.request.Messages),
		MaxOutputTokens: s.request.MaxTokens,
		Temperature:     s.request.Temperature,
		Tools:           tools,
		ToolChoice:      choice,
		ProviderOptions: fantasy.ProviderOptions{},
	}
}

func (s *Stream) consumePart(part fantasy.StreamPart) {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		s.text.WriteString(part.Delta)
	case fantasy.StreamPartTypeToolCall:
		if part.ProviderExecuted {
			return
		}
		id := part.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		if _, exists := s.toolCallSeen[id]; exists {
			return
		}
		s.toolCallSeen[id] = struct{}{}
		s.toolCalls = append(s.toolCalls, proto.ToolCall{
			ID: id,
			Function: proto.Function{
				Name:      part.ToolCallName,
				Arguments: []byte(part.ToolCallInput),
			},
		})
	case fantasy.StreamPartTypeError:
		s.err = part.Error
	case fantasy.StreamPartTypeWarnings:
		for _, warning := range part.Warnings {
			text := strings.TrimSpace(warning.Message)
			if text == "" {
				text = strings.TrimSpace(warning.Details)
			}
			if text == "" && warning.Setting != "" {
				text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
			}
			if text == "" {
				continue
			}
			key := string(warning.Type) + ":" + text
			if _, exists := s.warningSeen[key]; exists {
				continue
			}
			s.warningSeen[key] = struct{}{}
			s.logger.Warn("provider warning", "model", s.request.Model, "warning", text)
		}
	default:
	}
}
