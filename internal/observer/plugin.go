//go:generate mockgen -source plugin.go -destination ../mocks/mock_plugin.go -package mocks Plugin

package observer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/unboundedsystems/adapt/internal/resolver"
)

// Plugin fetches observed data for one observer.
//
// Observe receives the queries that are expected to be asked, usually those
// that needed data in the last pass. It returns a data/context snapshot that
// resolves at least those queries. Implementations must tolerate more, fewer
// or different queries than will actually be asked, must not depend on their
// order, and must converge when called repeatedly.
type Plugin interface {
	Schema() *resolver.Executable
	Observe(ctx context.Context, queries []ExecutedQuery) (ObserverResponse, error)
}

// Registry maps observer names to plugins. It is built at startup and passed
// to whatever constructs Managers.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

func (r *Registry) Register(name string, p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[name]; ok {
		return fmt.Errorf("plugin %q: %w", name, ErrDuplicateRegistration)
	}
	r.plugins[name] = p
	return nil
}

// MustRegister is Register for startup code.
func (r *Registry) MustRegister(name string, p Plugin) *Registry {
	if err := r.Register(name, p); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Lookup(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
