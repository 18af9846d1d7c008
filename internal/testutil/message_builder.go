package testutil

import (
	"github.com/hupe1980/flowmesh/core"
)

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	msg := NewMessageBuilder().Type("ping").Payload("hello").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MessageBuilder struct {
	source     string
	target     string
	msgType    string
	payload    any
	priority   core.Priority
	streaming  bool
	maxRetries int
}

// NewMessageBuilder creates a builder with source "a", target "b" and
// type "test".
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{source: "a", target: "b", msgType: "test"}
}

// Source sets the sending node id (chainable).
func (b *MessageBuilder) Source(id string) *MessageBuilder { b.source = id; return b }

// Target sets the receiving node id (chainable).
func (b *MessageBuilder) Target(id string) *MessageBuilder { b.target = id; return b }

// Type sets the message type handlers subscribe to (chainable).
func (b *MessageBuilder) Type(t string) *MessageBuilder { b.msgType = t; return b }

// Payload sets the message payload (chainable).
func (b *MessageBuilder) Payload(p any) *MessageBuilder { b.payload = p; return b }

// Priority sets the message priority (chainable).
func (b *MessageBuilder) Priority(p core.Priority) *MessageBuilder { b.priority = p; return b }

// Streaming marks the message as a streamed delivery (chainable).
func (b *MessageBuilder) Streaming() *MessageBuilder { b.streaming = true; return b }

// MaxRetries overrides the per-message retry budget (chainable).
func (b *MessageBuilder) MaxRetries(n int) *MessageBuilder { b.maxRetries = n; return b }

// Build constructs the core.Message value.
func (b *MessageBuilder) Build() *core.Message {
	msg := core.NewMessage(b.source, b.target, b.msgType, b.payload)

	if b.priority != "" {
		msg = msg.WithPriority(b.priority)
	}

	if b.streaming {
		msg = msg.WithStreaming()
	}

	if b.maxRetries > 0 {
		msg.MaxRetries = b.maxRetries
	}

	return msg
}
