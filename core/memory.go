package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/flowmesh/logging"
)

// Memory is an agent's working key-value memory, layered over a
// StorageProvider. Values are JSON-encoded so any provider backend (memory,
// Redis, SQLite, etcd) can hold them. Keys are namespaced per agent so
// multiple agents can share one provider.
type Memory struct {
	*loggerAdapter

	provider StorageProvider
	prefix   string
}

// NewMemory creates a working memory for the given agent id. A nil logger
// defaults to NoOpLogger.
func NewMemory(provider StorageProvider, agentID string, logger logging.Logger) *Memory {
	return &Memory{
		loggerAdapter: newLoggerAdapter(logger),
		provider:      provider,
		prefix:        fmt.Sprintf("agent:%s:memory:", agentID),
	}
}

// Set stores a value under key, replacing any previous value.
func (m *Memory) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode memory value %q: %w", key, err)
	}
	if err := m.provider.Set(ctx, m.prefix+key, data); err != nil {
		return err
	}
	m.LogDebug("memory value stored", "key", key)
	return nil
}

// Get decodes the value under key into out. Returns ErrKeyNotFound when the
// key has never been set.
func (m *Memory) Get(ctx context.Context, key string, out any) error {
	data, err := m.provider.Get(ctx, m.prefix+key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode memory value %q: %w", key, err)
	}
	return nil
}

// Delete removes the value under key. Deleting an absent key is not an error.
func (m *Memory) Delete(ctx context.Context, key string) error {
	return m.provider.Delete(ctx, m.prefix+key)
}

// Keys lists the stored keys for this agent, without the namespace prefix.
func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	keys, err := m.provider.List(ctx, m.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, m.prefix))
	}
	return out, nil
}

// Clear removes every value stored for this agent.
func (m *Memory) Clear(ctx context.Context) error {
	keys, err := m.provider.List(ctx, m.prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.provider.Delete(ctx, k); err != nil {
			return err
		}
	}
	m.LogDebug("memory cleared", "keys", len(keys))
	return nil
}
