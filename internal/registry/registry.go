// Package registry is the in-memory catalog of tools aggregated from every
// ready provider.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/logging"
)

// ErrToolNotFound is returned by Resolve for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// Registry maps tool names to descriptors. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]ToolDescriptor
	logger *log.Logger
}

// New creates an empty registry.
func New(logger *log.Logger) *Registry {
	return &Registry{
		tools:  map[string]ToolDescriptor{},
		logger: logging.OrDiscard(logger),
	}
}

// Register adds d. Registering a name twice keeps the last descriptor and
// logs a warning when the owning provider changes.
func (r *Registry) Register(d ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.tools[d.Name]; ok && prev.ProviderID != d.ProviderID {
		r.logger.Warn(
			"tool name collision, last registration wins",
			"tool", d.Name,
			"previous", prev.ProviderID,
			"provider", d.ProviderID,
		)
	}
	r.tools[d.Name] = d
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return ToolDescriptor{}, errs.New(
			errs.KindToolNotFound,
			fmt.Errorf("%w: %q", ErrToolNotFound, name),
			fmt.Sprintf("Tool %s is not available.", name),
		)
	}
	return d, nil
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b ToolDescriptor) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// RemoveProvider drops every tool owned by providerID and returns their names.
func (r *Registry) RemoveProvider(providerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, d := range r.tools {
		if d.ProviderID == providerID {
			delete(r.tools, name)
			removed = append(removed, name)
		}
	}
	slices.Sort(removed)
	return removed
}
