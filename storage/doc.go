// Package storage provides StorageProvider implementations backing agent
// memory, message history and flow persistence: a process-local in-memory
// provider for tests and single-process setups, plus Redis, SQLite and etcd
// providers for durable or shared state.
//
// All providers satisfy the core.StorageProvider contract: byte values under
// string keys, core.ErrKeyNotFound for missing keys, and prefix-scoped List.
package storage
