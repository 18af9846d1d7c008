package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

const messageKeyPrefix = "bus:message:"

// ProviderStore persists message records through a core.StorageProvider, so
// message history survives process restarts when backed by Redis, SQLite or
// etcd. Payloads must be JSON-serializable; decoded payloads come back as
// generic JSON values.
//
// Read-modify-write updates are serialized by a process-local mutex; the
// store assumes a single bus instance owns its key prefix.
type ProviderStore struct {
	mu       sync.Mutex
	provider core.StorageProvider
}

var _ Store = (*ProviderStore)(nil)

// NewProviderStore wraps a StorageProvider as a message store.
func NewProviderStore(provider core.StorageProvider) *ProviderStore {
	return &ProviderStore{provider: provider}
}

// Put stores the JSON-encoded message record.
func (s *ProviderStore) Put(ctx context.Context, msg *core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return s.provider.Set(ctx, messageKeyPrefix+msg.ID, data)
}

// Get decodes the stored record or returns core.ErrMessageNotFound.
func (s *ProviderStore) Get(ctx context.Context, id string) (*core.Message, error) {
	data, err := s.provider.Get(ctx, messageKeyPrefix+id)
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return nil, core.ErrMessageNotFound
		}
		return nil, err
	}
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", id, err)
	}
	return &msg, nil
}

// Update reads, mutates and rewrites the record under the store's mutex.
func (s *ProviderStore) Update(ctx context.Context, id string, fn func(*core.Message)) (*core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(msg)
	if err := s.Put(ctx, msg); err != nil {
		return nil, err
	}
	return msg.Clone(), nil
}

// Delete removes the record. Deleting an unknown id is not an error.
func (s *ProviderStore) Delete(ctx context.Context, id string) error {
	return s.provider.Delete(ctx, messageKeyPrefix+id)
}

// Len reports the number of stored records.
func (s *ProviderStore) Len(ctx context.Context) (int, error) {
	keys, err := s.provider.List(ctx, messageKeyPrefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
