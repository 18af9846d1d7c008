package core

import "context"

// Handler processes one delivered message. Handlers for the same message
// type run concurrently; each is retried individually per the bus's retry
// strategy. Returning a non-nil error counts the attempt as failed.
type Handler func(ctx context.Context, msg *Message) error

// StreamHandler receives one stream chunk. Chunk fan-out is fire-and-forget;
// handlers that need to signal failure must do so out of band.
type StreamHandler func(ctx context.Context, chunk StreamChunk)

// UnsubscribeFunc removes a previously registered subscription. It is
// idempotent and safe to call from any goroutine.
type UnsubscribeFunc func()

// Bus is the asynchronous publish/subscribe channel between nodes. It owns
// the message lifecycle: Send mints the id, stamps pending status and
// dispatches asynchronously; all later mutation happens through the bus
// (UpdateStatus, SendStreamChunk). Dispatch failures are recorded on the
// message, never returned to Send's caller.
type Bus interface {
	// Send accepts a message for asynchronous delivery and returns its
	// bus-assigned id. The error covers malformed input only; delivery
	// outcomes are observed via GetMessage or stream subscriptions.
	Send(ctx context.Context, msg *Message) (string, error)

	// Subscribe registers a handler for a message type and returns an
	// unsubscribe closure. Multiple handlers per type are allowed.
	Subscribe(messageType string, handler Handler) UnsubscribeFunc

	// SubscribeToStream registers a chunk handler for a message id. The
	// subscription is removed automatically once a chunk with Done arrives.
	SubscribeToStream(messageID string, handler StreamHandler) (UnsubscribeFunc, error)

	// SendStreamChunk delivers one chunk to all stream subscribers of the
	// message and updates its status (streaming, or completed when Done).
	SendStreamChunk(ctx context.Context, messageID string, chunk StreamChunk) error

	// GetMessage returns a copy of the stored message or ErrMessageNotFound.
	GetMessage(messageID string) (*Message, error)

	// UpdateStatus moves a message to the given status, refreshing its
	// UpdatedAt timestamp.
	UpdateStatus(messageID string, status MessageStatus) error
}
