package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/util"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/metrics"
)

// ErrStreamCompleted is returned by SendStreamChunk when the message already
// reached a terminal status. The record is still retained; only explicit
// cleanup makes the id unknown.
var ErrStreamCompleted = fmt.Errorf("stream already completed")

// CompletionCallback observes a message reaching terminal status. It is
// invoked once per message, from the bus's processing goroutine, with a
// cloned record.
type CompletionCallback func(msg *core.Message)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// RetryStrategy applied to handler deliveries. Messages may override
	// MaxRetries individually.
	RetryStrategy core.RetryStrategy
	// Store holds message records.
	Store Store
	// Logging services.
	Logger logging.Logger
	// Metrics collection; nil disables instrumentation.
	Metrics *metrics.Collector
	// OnComplete is called when a message reaches completed or failed.
	OnComplete CompletionCallback
}

// MessageBus is the in-process implementation of core.Bus. Handlers for a
// message type run concurrently, each with its own retry loop; the message
// completes only when every handler delivered, and one handler exhausting
// its retries fails the whole message. Per-handler receipts record the
// individual outcomes either way. Public methods are safe for concurrent use.
type MessageBus struct {
	retry      core.RetryStrategy
	store      Store
	logger     logging.Logger
	metrics    *metrics.Collector
	onComplete CompletionCallback

	mu        sync.RWMutex
	handlers  map[string]map[string]core.Handler
	streams   map[string]map[string]core.StreamHandler
	sequences map[string]int
}

var _ core.Bus = (*MessageBus)(nil)

// New constructs a MessageBus with optional overrides.
func New(optFns ...func(o *Options)) *MessageBus {
	opts := Options{
		RetryStrategy: core.DefaultRetryStrategy(),
		Store:         NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &MessageBus{
		retry:      opts.RetryStrategy,
		store:      opts.Store,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		onComplete: opts.OnComplete,
		handlers:   make(map[string]map[string]core.Handler),
		streams:    make(map[string]map[string]core.StreamHandler),
		sequences:  make(map[string]int),
	}
}

// Send accepts a message for asynchronous delivery. It stamps a fresh ULID
// id and pending status, stores the record and triggers processing in the
// background. Delivery failures are recorded on the message, never returned
// here; callers observe outcomes via GetMessage, stream subscriptions or the
// completion callback.
func (b *MessageBus) Send(ctx context.Context, msg *core.Message) (string, error) {
	if msg == nil {
		return "", &core.ValidationError{Kind: "message", Reason: "nil message"}
	}
	if msg.Type == "" {
		return "", &core.ValidationError{Kind: "message", Reason: "missing message type"}
	}

	m := msg.Clone()
	m.ID = util.NewMessageID()
	m.Status = core.StatusPending
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.RetryCount = 0
	m.Error = nil
	m.Receipts = nil
	if m.Priority == "" {
		m.Priority = core.PriorityNormal
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = b.retry.MaxRetries
	}

	if err := b.store.Put(ctx, m); err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}

	b.metrics.RecordMessageSent(m.Type)
	b.logger.Debug("message accepted id=%s type=%s source=%s target=%s", m.ID, m.Type, m.SourceID, m.TargetID)

	// Processing outlives Send's caller; only its values carry over.
	go b.processMessage(context.WithoutCancel(ctx), m.ID)

	return m.ID, nil
}

// Subscribe registers a handler for a message type and returns an
// unsubscribe closure. Multiple handlers per type are allowed; all of them
// run concurrently for each message.
func (b *MessageBus) Subscribe(messageType string, handler core.Handler) core.UnsubscribeFunc {
	id := util.NewID()

	b.mu.Lock()
	if b.handlers[messageType] == nil {
		b.handlers[messageType] = make(map[string]core.Handler)
	}
	b.handlers[messageType][id] = handler
	b.mu.Unlock()

	b.logger.Debug("handler subscribed type=%s subscription=%s", messageType, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.handlers[messageType]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.handlers, messageType)
				}
			}
			b.mu.Unlock()
		})
	}
}

// SubscribeToStream registers a chunk handler for a message id. The
// subscription is removed automatically once a chunk with Done arrives.
func (b *MessageBus) SubscribeToStream(messageID string, handler core.StreamHandler) (core.UnsubscribeFunc, error) {
	if _, err := b.store.Get(context.Background(), messageID); err != nil {
		return nil, err
	}

	id := util.NewID()

	b.mu.Lock()
	if b.streams[messageID] == nil {
		b.streams[messageID] = make(map[string]core.StreamHandler)
	}
	b.streams[messageID][id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.streams[messageID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.streams, messageID)
				}
			}
			b.mu.Unlock()
		})
	}, nil
}

// SendStreamChunk delivers one chunk to every stream subscriber of the
// message in parallel, waiting for all of them so chunk order is preserved
// per subscriber. The bus stamps the chunk's sequence number. A chunk with
// Done set completes the message and drops its subscribers; further sends
// for the id report ErrStreamCompleted while the record is retained.
func (b *MessageBus) SendStreamChunk(ctx context.Context, messageID string, chunk core.StreamChunk) error {
	cur, err := b.store.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("message %s: %w", messageID, ErrStreamCompleted)
	}

	b.mu.Lock()
	chunk.Sequence = b.sequences[messageID]
	b.sequences[messageID]++
	subs := make([]core.StreamHandler, 0, len(b.streams[messageID]))
	for _, h := range b.streams[messageID] {
		subs = append(subs, h)
	}
	if chunk.Done {
		delete(b.streams, messageID)
		delete(b.sequences, messageID)
	}
	b.mu.Unlock()

	if _, err := b.store.Update(ctx, messageID, func(m *core.Message) {
		m.Streaming = true
		c := chunk
		m.CurrentChunk = &c
		if !chunk.Done {
			m.Status = core.StatusStreaming
		}
		m.UpdatedAt = time.Now().UTC()
	}); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, h := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h(ctx, chunk)
		}()
	}
	wg.Wait()

	b.metrics.RecordStreamChunk(cur.Type)
	b.logger.Debug("stream chunk delivered id=%s sequence=%d done=%v subscribers=%d", messageID, chunk.Sequence, chunk.Done, len(subs))

	if chunk.Done {
		return b.markTerminal(ctx, messageID, core.StatusCompleted, nil, nil)
	}
	return nil
}

// GetMessage returns a copy of the stored message or core.ErrMessageNotFound.
func (b *MessageBus) GetMessage(messageID string) (*core.Message, error) {
	return b.store.Get(context.Background(), messageID)
}

// UpdateStatus moves a message to the given status, refreshing its UpdatedAt
// timestamp. Terminal statuses trigger the completion callback.
func (b *MessageBus) UpdateStatus(messageID string, status core.MessageStatus) error {
	ctx := context.Background()
	if status.Terminal() {
		return b.markTerminal(ctx, messageID, status, nil, nil)
	}
	_, err := b.store.Update(ctx, messageID, func(m *core.Message) {
		m.Status = status
		m.UpdatedAt = time.Now().UTC()
	})
	return err
}

// Cleanup removes a message record and any stream bookkeeping for its id.
// After cleanup the id behaves as never seen: stream sends report
// core.ErrMessageNotFound.
func (b *MessageBus) Cleanup(messageID string) error {
	b.mu.Lock()
	delete(b.streams, messageID)
	delete(b.sequences, messageID)
	b.mu.Unlock()

	return b.store.Delete(context.Background(), messageID)
}

func (b *MessageBus) handlersFor(messageType string) map[string]core.Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.handlers[messageType]
	if len(set) == 0 {
		return nil
	}
	out := make(map[string]core.Handler, len(set))
	for id, h := range set {
		out[id] = h
	}
	return out
}

// processMessage drives one message through the delivery state machine:
// pending → processing → {completed | failed | streaming → completed}.
func (b *MessageBus) processMessage(ctx context.Context, id string) {
	msg, err := b.store.Get(ctx, id)
	if err != nil {
		b.logger.Error("message vanished before processing id=%s: %v", id, err)
		return
	}

	handlers := b.handlersFor(msg.Type)
	if len(handlers) == 0 {
		hErr := &core.HandlerNotFoundError{MessageType: msg.Type}
		if err := b.markTerminal(ctx, id, core.StatusFailed, &core.MessageError{Code: "no_handlers", Message: hErr.Error()}, nil); err != nil {
			b.logger.Error("mark failed id=%s: %v", id, err)
		}
		return
	}

	if _, err := b.store.Update(ctx, id, func(m *core.Message) {
		if m.Status.Terminal() {
			return
		}
		m.Status = core.StatusProcessing
		m.UpdatedAt = time.Now().UTC()
	}); err != nil {
		b.logger.Error("mark processing failed id=%s: %v", id, err)
		return
	}

	start := time.Now()

	var (
		rmu      sync.Mutex
		receipts []core.DeliveryReceipt
	)
	var g errgroup.Group
	for handlerID, handler := range handlers {
		g.Go(func() error {
			rec := b.deliverWithRetry(ctx, id, handlerID, handler)
			b.metrics.RecordHandlerDuration(msg.Type, rec.Duration)
			rmu.Lock()
			receipts = append(receipts, rec)
			rmu.Unlock()
			if !rec.Succeeded() {
				return fmt.Errorf("handler %s: %s", rec.HandlerID, rec.Err)
			}
			return nil
		})
	}
	deliverErr := g.Wait()

	sort.Slice(receipts, func(i, j int) bool { return receipts[i].HandlerID < receipts[j].HandlerID })

	if deliverErr != nil {
		if err := b.markTerminal(ctx, id, core.StatusFailed, &core.MessageError{Code: "retry_exhausted", Message: deliverErr.Error()}, receipts); err != nil {
			b.logger.Error("mark failed id=%s: %v", id, err)
		}
		b.logger.Warn("message failed id=%s type=%s duration=%s: %v", id, msg.Type, time.Since(start), deliverErr)
		return
	}

	// A streaming message stays open after its handlers return; the done
	// chunk owns completion.
	cur, err := b.store.Get(ctx, id)
	if err != nil {
		return
	}
	if cur.Streaming || cur.Status == core.StatusStreaming {
		if _, err := b.store.Update(ctx, id, func(m *core.Message) {
			m.Receipts = receipts
		}); err != nil {
			b.logger.Error("attach receipts failed id=%s: %v", id, err)
		}
		return
	}

	if err := b.markTerminal(ctx, id, core.StatusCompleted, nil, receipts); err != nil {
		b.logger.Error("mark completed id=%s: %v", id, err)
		return
	}
	b.logger.Debug("message completed id=%s type=%s handlers=%d duration=%s", id, msg.Type, len(receipts), time.Since(start))
}

// deliverWithRetry runs one handler against the message with the bus's retry
// policy. RetryCount on the record tracks the deepest attempt across
// concurrent handlers and never exceeds MaxRetries.
func (b *MessageBus) deliverWithRetry(ctx context.Context, messageID, handlerID string, handler core.Handler) core.DeliveryReceipt {
	start := time.Now()

	maxRetries := b.retry.MaxRetries
	msgType := ""
	if msg, err := b.store.Get(ctx, messageID); err == nil {
		msgType = msg.Type
		if msg.MaxRetries > 0 {
			maxRetries = msg.MaxRetries
		}
	}

	var lastErr error
loop:
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			b.metrics.RecordMessageRetry(msgType)
			if _, err := b.store.Update(ctx, messageID, func(m *core.Message) {
				if m.Status == core.StatusProcessing {
					m.Status = core.StatusRetrying
				}
				if attempt > m.RetryCount {
					m.RetryCount = attempt
				}
				m.UpdatedAt = time.Now().UTC()
			}); err != nil {
				lastErr = err
				break loop
			}

			select {
			case <-time.After(delayFor(b.retry, attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break loop
			}

			if _, err := b.store.Update(ctx, messageID, func(m *core.Message) {
				if m.Status == core.StatusRetrying {
					m.Status = core.StatusProcessing
					m.UpdatedAt = time.Now().UTC()
				}
			}); err != nil {
				lastErr = err
				break loop
			}
		}

		msg, err := b.store.Get(ctx, messageID)
		if err != nil {
			lastErr = err
			break loop
		}

		if err := handler(ctx, msg); err != nil {
			lastErr = err
			b.logger.Warn("handler attempt failed message=%s handler=%s attempt=%d: %v", messageID, handlerID, attempt+1, err)
			continue
		}

		return core.DeliveryReceipt{HandlerID: handlerID, Attempts: attempt + 1, Duration: time.Since(start)}
	}

	rex := &core.RetryExhaustedError{Attempts: maxRetries + 1, Err: lastErr}
	return core.DeliveryReceipt{HandlerID: handlerID, Attempts: maxRetries + 1, Duration: time.Since(start), Err: rex.Error()}
}

// markTerminal moves a message into completed or failed exactly once,
// attaching the error record and receipts, and fires the completion callback
// for the transition that won.
func (b *MessageBus) markTerminal(ctx context.Context, id string, status core.MessageStatus, mErr *core.MessageError, receipts []core.DeliveryReceipt) error {
	applied := false
	updated, err := b.store.Update(ctx, id, func(m *core.Message) {
		if m.Status.Terminal() {
			return
		}
		applied = true
		m.Status = status
		m.Error = mErr
		if receipts != nil {
			m.Receipts = receipts
		}
		m.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	b.metrics.RecordMessageTerminal(updated.Type, string(status))
	if b.onComplete != nil {
		b.onComplete(updated)
	}
	return nil
}
