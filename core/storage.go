package core

import "context"

// StorageProvider is the generic key-value capability set the orchestration
// core consumes for persistence. The core never depends on a specific
// backend; memory, Redis, SQLite and etcd implementations live in the storage
// package and anything satisfying this contract can be swapped in.
//
// Get returns ErrKeyNotFound when the key does not exist. List returns the
// keys under a prefix in lexical order. Implementations must be safe for
// concurrent use.
type StorageProvider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
