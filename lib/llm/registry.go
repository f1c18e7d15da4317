// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names (as stored in a room's aiConfig) to
// Provider implementations. Safe for concurrent use.
type Registry struct {
	mutex     sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds name to provider, replacing any previous binding.
func (registry *Registry) Register(name string, provider Provider) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.providers[name] = provider
}

// Lookup returns the provider registered under name.
func (registry *Registry) Lookup(name string) (Provider, error) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	provider, ok := registry.providers[name]
	if !ok {
		return nil, fmt.Errorf("llm: no provider registered as %q", name)
	}
	return provider, nil
}

// Names returns the registered names in sorted order.
func (registry *Registry) Names() []string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
