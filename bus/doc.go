// Package bus implements the asynchronous message bus connecting nodes.
//
// MessageBus owns the full message lifecycle: Send mints a sortable ULID id,
// stamps pending status and dispatches processing in the background. Every
// handler registered for the message's type runs concurrently, each wrapped
// in its own retry loop with exponential backoff. A message completes only
// if every handler delivered; one handler exhausting its retries fails the
// whole message, with per-handler delivery receipts recording who did what.
//
// Streamed messages deliver incremental chunks to per-message stream
// subscribers; a chunk with Done set completes the message and removes its
// subscribers.
//
// Message records live in a pluggable Store. The default in-memory store
// retains messages for the life of the process; capacity and TTL bounds are
// explicit options, and NewProviderStore persists records through any
// core.StorageProvider backend.
package bus
