package mcp

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/toolchat/internal/config"
)

// State is the lifecycle state of a provider.
type State int

// Provider states.
const (
	StateUnstarted State = iota
	StateStarting
	StateReady
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Spec describes how to reach one provider.
type Spec struct {
	ID      string
	Kind    string
	Command string
	Args    []string
	Env     []string
	URL     string
	// Tools restricts which tools are registered. Empty means all.
	Tools []string
}

// EnabledProviders iterates enabled providers in stable order.
func EnabledProviders(cfg *config.Config) iter.Seq2[string, config.ProviderConfig] {
	return func(yield func(string, config.ProviderConfig) bool) {
		names := slices.Collect(maps.Keys(cfg.Providers))
		slices.Sort(names)
		for _, name := range names {
			if !cfg.IsEnabled(name) {
				continue
			}
			if !yield(name, cfg.Providers[name]) {
				return
			}
		}
	}
}

// SpecsFromConfig returns a Spec for every enabled provider.
func SpecsFromConfig(cfg *config.Config) []Spec {
	var specs []Spec
	for name, p := range EnabledProviders(cfg) {
		specs = append(specs, Spec{
			ID:      name,
			Kind:    p.Kind(),
			Command: p.Command,
			Args:    p.Args,
			Env:     p.Env,
			URL:     p.URL,
			Tools:   p.Tools,
		})
	}
	return specs
}

// Status is a point-in-time view of a provider.
type Status struct {
	ID    string   `json:"id"`
	Kind  string   `json:"kind"`
	State State    `json:"state"`
	Tools []string `json:"tools"`
	Error string   `json:"error,omitempty"`
}

// Provider owns the channel to one tool source.
type Provider struct {
	spec    Spec
	channel Channel
	logger  *log.Logger

	mu    sync.Mutex
	state State
	err   error
	tools []string
}

func (p *Provider) setState(state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	if err != nil {
		p.err = err
	}
}

func (p *Provider) setTools(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools = names
}

// State returns the provider's current state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Provider) status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		ID:    p.spec.ID,
		Kind:  p.spec.Kind,
		State: p.state,
		Tools: slices.Clone(p.tools),
	}
	if p.err != nil {
		st.Error = p.err.Error()
	}
	return st
}

func (p *Provider) start(ctx context.Context) ([]mcp.Tool, error) {
	p.setState(StateStarting, nil)
	tools, err := p.channel.Open(ctx)
	if err != nil {
		p.setState(StateFailed, err)
		return nil, err
	}
	p.setState(StateReady, nil)
	return tools, nil
}

func (p *Provider) allows(tool string) bool {
	return len(p.spec.Tools) == 0 || slices.Contains(p.spec.Tools, tool)
}

// close closes the channel and kills it if it has not returned within grace
// or before ctx is done.
func (p *Provider) close(ctx context.Context, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- p.channel.Close() }()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		err = p.kill(fmt.Errorf("provider %s did not exit within %s", p.spec.ID, grace))
	case <-ctx.Done():
		err = p.kill(fmt.Errorf("provider %s: %w", p.spec.ID, ctx.Err()))
	}

	p.mu.Lock()
	if p.state != StateFailed {
		p.state = StateTerminated
	}
	p.mu.Unlock()
	return err
}

func (p *Provider) kill(reason error) error {
	p.logger.Warn("killing provider", "reason", reason)
	if err := p.channel.Kill(); err != nil {
		return fmt.Errorf("%w: kill: %w", reason, err)
	}
	return reason
}
