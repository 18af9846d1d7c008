package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

// InMemoryProvider is a naive process-local StorageProvider. Values are
// copied on the way in and out so callers cannot alias internal state.
// Concurrency: protected by RWMutex.
type InMemoryProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ core.StorageProvider = (*InMemoryProvider)(nil)

// NewInMemoryProvider creates an empty in-memory provider.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (p *InMemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.data[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value under key, overwriting any previous value.
func (p *InMemoryProvider) Set(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes the key. Deleting an unknown key is not an error.
func (p *InMemoryProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.data, key)
	return nil
}

// List returns the sorted keys beginning with prefix.
func (p *InMemoryProvider) List(_ context.Context, prefix string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var keys []string
	for key := range p.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
