package bus

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// Store holds the bus's message records. Get returns core.ErrMessageNotFound
// for unknown ids; Update applies fn under the store's lock and returns a
// clone of the updated record. Implementations must be safe for concurrent
// use.
type Store interface {
	Put(ctx context.Context, msg *core.Message) error
	Get(ctx context.Context, id string) (*core.Message, error)
	Update(ctx context.Context, id string, fn func(*core.Message)) (*core.Message, error)
	Delete(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}

// StoreOptions holds configuration overrides passed to NewInMemoryStore().
type StoreOptions struct {
	// Capacity bounds the number of retained messages; the oldest message
	// is evicted first. Zero keeps every message for the life of the
	// process.
	Capacity int
	// TTL expires messages idle longer than the given duration. Zero
	// disables expiry. Expired records are dropped lazily on writes.
	TTL time.Duration
}

// InMemoryStore is a volatile Store implementation keeping message records in
// a process local map. It is safe for concurrent access. Each returned
// message is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*core.Message
	order    []string
	capacity int
	ttl      time.Duration
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory message store.
func NewInMemoryStore(optFns ...func(o *StoreOptions)) *InMemoryStore {
	opts := StoreOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{
		messages: make(map[string]*core.Message),
		capacity: opts.Capacity,
		ttl:      opts.TTL,
	}
}

// Put stores a clone of the message, evicting expired and over-capacity
// records first.
func (s *InMemoryStore) Put(_ context.Context, msg *core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	if _, ok := s.messages[msg.ID]; !ok {
		s.order = append(s.order, msg.ID)
	}
	s.messages[msg.ID] = msg.Clone()

	if s.capacity > 0 {
		for len(s.messages) > s.capacity {
			if !s.evictOldestLocked() {
				break
			}
		}
	}
	return nil
}

// Get returns a clone of the stored message or core.ErrMessageNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok || s.expired(msg) {
		return nil, core.ErrMessageNotFound
	}
	return msg.Clone(), nil
}

// Update applies fn to the stored record under the write lock and returns a
// clone of the result.
func (s *InMemoryStore) Update(_ context.Context, id string, fn func(*core.Message)) (*core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || s.expired(msg) {
		return nil, core.ErrMessageNotFound
	}
	fn(msg)
	return msg.Clone(), nil
}

// Delete removes the record. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, id)
	return nil
}

// Len reports the number of live records.
func (s *InMemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ttl == 0 {
		return len(s.messages), nil
	}
	n := 0
	for _, msg := range s.messages {
		if !s.expired(msg) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) expired(msg *core.Message) bool {
	return s.ttl > 0 && time.Since(msg.UpdatedAt) > s.ttl
}

func (s *InMemoryStore) sweepLocked() {
	if s.ttl == 0 {
		return
	}
	for id, msg := range s.messages {
		if s.expired(msg) {
			delete(s.messages, id)
		}
	}
}

// evictOldestLocked drops the oldest live record, skipping order entries
// already deleted. Reports whether anything was evicted.
func (s *InMemoryStore) evictOldestLocked() bool {
	for len(s.order) > 0 {
		id := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.messages[id]; ok {
			delete(s.messages, id)
			return true
		}
	}
	return false
}
