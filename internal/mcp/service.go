// Package mcp connects to tool providers speaking the Model Context Protocol
// and routes tool invocations to them.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	xstrings "github.com/charmbracelet/x/exp/strings"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/toolchat/internal/config"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/logging"
	"github.com/dotcommander/toolchat/internal/registry"
	"github.com/dotcommander/toolchat/internal/telemetry"
	"github.com/dotcommander/toolchat/internal/tools/mathtools"
	"github.com/dotcommander/toolchat/internal/tools/searchtools"
)

// Options tunes a Service.
type Options struct {
	Version       string
	StartTimeout  time.Duration
	CallTimeout   time.Duration
	ShutdownGrace time.Duration
	Observer      *telemetry.ToolObserver
	// Searcher backs builtin search providers. Defaults to Tavily.
	Searcher searchtools.Searcher
	// NewChannel overrides channel construction.
	NewChannel func(Spec) (Channel, error)
}

// OptionsFromConfig derives Options from settings.
func OptionsFromConfig(cfg *config.Config, version string) Options {
	return Options{
		Version:       version,
		StartTimeout:  cfg.StartTimeout,
		CallTimeout:   cfg.CallTimeout,
		ShutdownGrace: cfg.ShutdownGrace,
	}
}

// Invocation is one tool call and its outcome.
type Invocation struct {
	ID          string
	Tool        string
	Provider    string
	Arguments   map[string]any
	Result      string
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Service manages the configured providers and the tool registry built from
// their catalogs.
type Service struct {
	logger   *log.Logger
	opts     Options
	registry *registry.Registry

	mu        sync.RWMutex
	providers map[string]*Provider
	order     []string
}

// New creates a service with an empty registry.
func New(logger *log.Logger, opts Options) *Service {
	logger = logging.OrDiscard(logger).WithPrefix("mcp")
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 15 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	return &Service{
		logger:    logger,
		opts:      opts,
		registry:  registry.New(logger),
		providers: map[string]*Provider{},
	}
}

// Registry returns the tool registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Tools lists registered tools sorted by name.
func (s *Service) Tools() []registry.ToolDescriptor { return s.registry.List() }

// Configure creates one provider per spec. Provider ids must be unique.
func (s *Service) Configure(specs []Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.providers) > 0 {
		return fmt.Errorf("mcp: providers already configured")
	}

	providers := make(map[string]*Provider, len(specs))
	order := make([]string, 0, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return fmt.Errorf("mcp: provider without an id")
		}
		if _, ok := providers[spec.ID]; ok {
			return errs.Wrap(
				fmt.Errorf("mcp: duplicate provider id %q", spec.ID),
				"Invalid provider configuration.",
			)
		}
		ch, err := s.newChannel(spec)
		if err != nil {
			return errs.Wrap(fmt.Errorf("mcp: provider %q: %w", spec.ID, err), "Invalid provider configuration.")
		}
		providers[spec.ID] = &Provider{
			spec:    spec,
			channel: ch,
			logger:  s.logger.With("provider", spec.ID),
		}
		order = append(order, spec.ID)
	}
	slices.Sort(order)

	s.providers = providers
	s.order = order
	return nil
}

func (s *Service) newChannel(spec Spec) (Channel, error) {
	if s.opts.NewChannel != nil {
		return s.opts.NewChannel(spec)
	}

	logger := s.logger.With("provider", spec.ID)
	switch spec.Kind {
	case "", config.ProviderStdio:
		if spec.Command == "" {
			return nil, fmt.Errorf("stdio provider needs a command")
		}
		return NewPipeChannel(spec.Command, spec.Args, spec.Env, s.opts.Version, logger), nil
	case config.ProviderSSE:
		return NewSSEChannel(spec.URL, s.opts.Version, logger), nil
	case config.ProviderHTTP:
		return NewHTTPChannel(spec.URL, s.opts.Version, logger), nil
	case config.ProviderBuiltin:
		srv, err := s.builtinServer(spec)
		if err != nil {
			return nil, err
		}
		return NewBuiltinChannel(srv, s.opts.Version, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %q, supported types are: stdio, sse, http, builtin", spec.Kind)
	}
}

func (s *Service) builtinServer(spec Spec) (*server.MCPServer, error) {
	name := spec.Command
	if name == "" {
		name = spec.ID
	}
	switch name {
	case "math":
		return mathtools.NewServer(s.opts.Version), nil
	case "search":
		searcher := s.opts.Searcher
		if searcher == nil {
			searcher = searchtools.NewTavily()
		}
		return searchtools.NewServer(s.opts.Version, searcher), nil
	default:
		return nil, fmt.Errorf("unknown builtin provider %q, expected math or search", name)
	}
}

func (s *Service) ordered() []*Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Provider, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.providers[id])
	}
	return out
}

func (s *Service) provider(id string) (*Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	return p, ok
}

// StartAll starts every provider concurrently and registers the tools of
// those that become ready. Failed providers are logged and skipped; an error
// is returned only when providers were configured and none started.
func (s *Service) StartAll(ctx context.Context) error {
	providers := s.ordered()
	if len(providers) == 0 {
		return nil
	}

	var mu sync.Mutex
	var failures []error
	var failed []string
	catalogs := map[string][]mcp.Tool{}

	var wg errgroup.Group
	for _, p := range providers {
		wg.Go(func() error {
			startCtx, cancel := context.WithTimeout(ctx, s.opts.StartTimeout)
			defer cancel()

			tools, err := p.start(startCtx)
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("timeout while starting %q, make sure the configuration is correct: %w", p.spec.ID, err)
			}
			if err != nil {
				p.logger.Error("provider failed to start", "err", err)
				_ = p.close(ctx, s.opts.ShutdownGrace)
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", p.spec.ID, err))
				failed = append(failed, p.spec.ID)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			catalogs[p.spec.ID] = tools
			mu.Unlock()
			return nil
		})
	}
	_ = wg.Wait()

	if len(catalogs) == 0 {
		slices.Sort(failed)
		return errs.New(
			errs.KindProviderStartup,
			fmt.Errorf("mcp: no provider started: %w", errors.Join(failures...)),
			fmt.Sprintf("Could not start any tool provider (%s failed).", xstrings.EnglishJoin(failed, true)),
		)
	}

	for _, p := range providers {
		tools, ok := catalogs[p.spec.ID]
		if !ok {
			continue
		}
		var names []string
		for _, tool := range tools {
			if !p.allows(tool.Name) {
				continue
			}
			desc, err := registry.NewDescriptor(p.spec.ID, tool)
			if err != nil {
				p.logger.Warn("skipping tool", "tool", tool.Name, "err", err)
				continue
			}
			s.registry.Register(desc)
			names = append(names, desc.Name)
		}
		slices.Sort(names)
		p.setTools(names)
		p.logger.Info("provider ready", "tools", len(names))
	}
	return nil
}

// Invoke resolves name, validates args against its schema and forwards the
// call to the owning provider.
func (s *Service) Invoke(ctx context.Context, name string, args map[string]any) (Invocation, error) {
	inv := Invocation{
		ID:        uuid.NewString(),
		Tool:      name,
		Arguments: args,
		StartedAt: time.Now(),
	}
	finish := func(err error) (Invocation, error) {
		inv.CompletedAt = time.Now()
		inv.Err = err
		kind := ""
		if err != nil {
			kind = string(errs.KindOf(err))
			if kind == "" {
				kind = "unknown"
			}
		}
		transport := ""
		if p, ok := s.provider(inv.Provider); ok {
			transport = p.spec.Kind
		}
		s.opts.Observer.ObserveInvoke(ctx, telemetry.Invocation{
			Tool:      name,
			Provider:  inv.Provider,
			Transport: transport,
			StartedAt: inv.StartedAt,
			Duration:  inv.CompletedAt.Sub(inv.StartedAt),
			ErrorKind: kind,
		})
		return inv, err
	}

	desc, err := s.registry.Resolve(name)
	if err != nil {
		return finish(err)
	}
	inv.Provider = desc.ProviderID

	validated, err := desc.Validate(args)
	if err != nil {
		return finish(err)
	}
	inv.Arguments = validated

	p, ok := s.provider(desc.ProviderID)
	if !ok || p.State() != StateReady {
		return finish(errs.New(
			errs.KindToolExecution,
			fmt.Errorf("mcp: provider %q is not ready", desc.ProviderID),
			fmt.Sprintf("Tool %s is unavailable.", name),
		))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	result, err := p.channel.Call(callCtx, name, validated)
	if err != nil {
		if ctx.Err() != nil {
			return finish(fmt.Errorf("mcp: %w", ctx.Err()))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.fail(p, err)
			return finish(errs.New(
				errs.KindTransportTimeout,
				fmt.Errorf("mcp: %s timed out after %s: %w", name, s.opts.CallTimeout, err),
				fmt.Sprintf("Tool %s timed out.", name),
			))
		}
		if IsToolRejected(err) {
			p.logger.Warn("tool call rejected", "tool", name, "err", err)
			return finish(errs.New(
				errs.KindToolExecution,
				fmt.Errorf("mcp: %w", err),
				fmt.Sprintf("Tool %s failed.", name),
			))
		}
		s.fail(p, err)
		return finish(errs.New(
			errs.KindToolExecution,
			fmt.Errorf("mcp: %w", err),
			fmt.Sprintf("Tool %s failed.", name),
		))
	}

	text := resultText(result)
	if result.IsError {
		return finish(errs.New(errs.KindToolExecution, errors.New(text), fmt.Sprintf("Tool %s failed.", name)))
	}
	inv.Result = text
	return finish(nil)
}

// fail marks p failed after a transport error, kills its channel and drops
// its tools from the registry.
func (s *Service) fail(p *Provider, cause error) {
	p.setState(StateFailed, cause)
	p.setTools(nil)
	removed := s.registry.RemoveProvider(p.spec.ID)
	p.logger.Error("provider failed", "err", cause, "removed", removed)
	if err := p.channel.Kill(); err != nil {
		p.logger.Warn("could not kill provider", "err", err)
	}
	go func() { _ = p.channel.Close() }()
}

// Shutdown closes every provider concurrently. Providers that have not
// exited within the grace period are killed.
func (s *Service) Shutdown(ctx context.Context) error {
	providers := s.ordered()

	var mu sync.Mutex
	var failures []error
	var wg errgroup.Group
	for _, p := range providers {
		if st := p.State(); st != StateStarting && st != StateReady {
			continue
		}
		wg.Go(func() error {
			if err := p.close(ctx, s.opts.ShutdownGrace); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = wg.Wait()

	for _, p := range providers {
		s.registry.RemoveProvider(p.spec.ID)
	}
	if len(failures) > 0 {
		return fmt.Errorf("mcp: shutdown: %w", errors.Join(failures...))
	}
	return nil
}

// Providers returns a status snapshot of every provider in id order.
func (s *Service) Providers() []Status {
	providers := s.ordered()
	out := make([]Status, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.status())
	}
	return out
}

func resultText(result *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, content := range result.Content {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}
	return sb.String()
}
