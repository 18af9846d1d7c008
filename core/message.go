package core

import "time"

// MessageStatus tracks a message through the bus processing state machine:
// pending → processing → {completed | failed | streaming → completed}, with
// retrying entered between failed attempts.
type MessageStatus string

const (
	// StatusPending marks a message accepted by the bus but not yet dispatched.
	StatusPending MessageStatus = "pending"
	// StatusProcessing marks a message whose handlers are currently running.
	StatusProcessing MessageStatus = "processing"
	// StatusRetrying marks a message waiting out a backoff delay between attempts.
	StatusRetrying MessageStatus = "retrying"
	// StatusStreaming marks a message delivering chunked output.
	StatusStreaming MessageStatus = "streaming"
	// StatusCompleted marks a terminal successful delivery.
	StatusCompleted MessageStatus = "completed"
	// StatusFailed marks a terminal failed delivery.
	StatusFailed MessageStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s MessageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority orders messages by urgency. The bus records it on the message;
// scheduling remains submission-ordered.
type Priority string

const (
	// PriorityLow marks background traffic.
	PriorityLow Priority = "low"
	// PriorityNormal is the default priority.
	PriorityNormal Priority = "normal"
	// PriorityHigh marks latency-sensitive traffic.
	PriorityHigh Priority = "high"
)

// MessageError is the structured failure record attached to a message whose
// delivery ended in failed status.
type MessageError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MessageError) Error() string { return e.Message }

// DeliveryReceipt records the outcome of one handler's delivery attempt
// sequence. A message fanned out to N handlers carries N receipts regardless
// of the terminal status.
type DeliveryReceipt struct {
	HandlerID string        `json:"handlerId"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"error,omitempty"`
}

// Succeeded reports whether this handler delivered without exhausting retries.
func (r DeliveryReceipt) Succeeded() bool { return r.Err == "" }

// StreamChunk is one increment of a streamed message payload. Sequence is
// monotonic per message and assigned by the bus; a chunk with Done set
// completes the stream.
type StreamChunk struct {
	Sequence int  `json:"sequence"`
	Data     any  `json:"data"`
	Done     bool `json:"done"`
}

// RetryStrategy controls delivery retries on the bus. Delay for attempt n is
// BaseDelay (doubling each attempt up to MaxDelay when Exponential is set).
type RetryStrategy struct {
	MaxRetries  int           `json:"maxRetries"`
	BaseDelay   time.Duration `json:"baseDelay"`
	MaxDelay    time.Duration `json:"maxDelay"`
	Exponential bool          `json:"exponential"`
}

// DefaultRetryStrategy returns the process-wide default retry policy,
// overridable per bus instance.
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Exponential: true,
	}
}

// Message is the asynchronous, stateful unit of communication between two
// nodes. The bus mints its id and owns every mutation after Send; callers
// observe outcomes through GetMessage, stream subscriptions or a completion
// callback. RetryCount never exceeds MaxRetries.
type Message struct {
	ID           string            `json:"id"`
	SourceID     string            `json:"sourceId"`
	TargetID     string            `json:"targetId"`
	Type         string            `json:"type"`
	Payload      any               `json:"payload"`
	Priority     Priority          `json:"priority"`
	Status       MessageStatus     `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	RetryCount   int               `json:"retryCount"`
	MaxRetries   int               `json:"maxRetries"`
	Streaming    bool              `json:"streaming,omitempty"`
	CurrentChunk *StreamChunk      `json:"currentChunk,omitempty"`
	Error        *MessageError     `json:"error,omitempty"`
	Receipts     []DeliveryReceipt `json:"receipts,omitempty"`
}

// NewMessage creates a message from source to target carrying payload under
// a message type. The id and status fields are stamped by the bus on Send;
// values set here are overwritten.
func NewMessage(sourceID, targetID, messageType string, payload any) *Message {
	return &Message{
		SourceID: sourceID,
		TargetID: targetID,
		Type:     messageType,
		Payload:  payload,
		Priority: PriorityNormal,
	}
}

// WithPriority sets the message priority and returns the message for chaining.
func (m *Message) WithPriority(p Priority) *Message {
	m.Priority = p
	return m
}

// WithStreaming marks the message as a streamed delivery.
func (m *Message) WithStreaming() *Message {
	m.Streaming = true
	return m
}

// Clone returns a deep copy of the message. Payload and chunk data are copied
// by reference; callers must not mutate payloads after sending.
func (m *Message) Clone() *Message {
	c := *m
	if m.CurrentChunk != nil {
		chunk := *m.CurrentChunk
		c.CurrentChunk = &chunk
	}
	if m.Error != nil {
		e := *m.Error
		c.Error = &e
	}
	if m.Receipts != nil {
		c.Receipts = append([]DeliveryReceipt(nil), m.Receipts...)
	}
	return &c
}
