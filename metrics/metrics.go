// Package metrics exports Prometheus instrumentation for the message bus and
// the agent runtime. A Collector is created against an explicit Registerer so
// applications control registration and scraping; a nil *Collector is a
// valid no-op, letting components record unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the bus and runtime metric families.
type Collector struct {
	// Bus metrics.
	MessagesSent     *prometheus.CounterVec
	MessagesTerminal *prometheus.CounterVec
	MessageRetries   *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	StreamChunks     *prometheus.CounterVec

	// Runtime metrics.
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	QueueDepth        *prometheus.GaugeVec
}

// New creates a Collector registered on the given Registerer. Passing
// prometheus.DefaultRegisterer reproduces global registration.
func New(reg prometheus.Registerer, namespace string) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total messages accepted by the bus, by message type",
			},
			[]string{"type"},
		),
		MessagesTerminal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_terminal_total",
				Help:      "Total messages reaching a terminal status, by type and status",
			},
			[]string{"type", "status"},
		),
		MessageRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "message_retries_total",
				Help:      "Total delivery retry attempts, by message type",
			},
			[]string{"type"},
		),
		HandlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Handler delivery duration in seconds, by message type",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"type"},
		),
		StreamChunks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_chunks_total",
				Help:      "Total stream chunks delivered, by message type",
			},
			[]string{"type"},
		),
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_executions_total",
				Help:      "Total node executions, by node type and outcome",
			},
			[]string{"node_type", "status"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_execution_duration_seconds",
				Help:      "Node execution duration in seconds, by node type",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
			},
			[]string{"node_type"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "execution_queue_depth",
				Help:      "Queued executions per agent",
			},
			[]string{"agent_id"},
		),
	}
}

// RecordMessageSent counts an accepted message.
func (c *Collector) RecordMessageSent(messageType string) {
	if c == nil {
		return
	}
	c.MessagesSent.WithLabelValues(messageType).Inc()
}

// RecordMessageTerminal counts a message reaching completed or failed.
func (c *Collector) RecordMessageTerminal(messageType, status string) {
	if c == nil {
		return
	}
	c.MessagesTerminal.WithLabelValues(messageType, status).Inc()
}

// RecordMessageRetry counts one delivery retry attempt.
func (c *Collector) RecordMessageRetry(messageType string) {
	if c == nil {
		return
	}
	c.MessageRetries.WithLabelValues(messageType).Inc()
}

// RecordHandlerDuration observes one handler's total delivery duration.
func (c *Collector) RecordHandlerDuration(messageType string, d time.Duration) {
	if c == nil {
		return
	}
	c.HandlerDuration.WithLabelValues(messageType).Observe(d.Seconds())
}

// RecordStreamChunk counts one delivered stream chunk.
func (c *Collector) RecordStreamChunk(messageType string) {
	if c == nil {
		return
	}
	c.StreamChunks.WithLabelValues(messageType).Inc()
}

// RecordExecution counts a node execution outcome and its duration.
func (c *Collector) RecordExecution(nodeType, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.Executions.WithLabelValues(nodeType, status).Inc()
	c.ExecutionDuration.WithLabelValues(nodeType).Observe(d.Seconds())
}

// SetQueueDepth reports the current queued execution count for an agent.
func (c *Collector) SetQueueDepth(agentID string, depth int) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(agentID).Set(float64(depth))
}

// Handler returns an HTTP handler exposing the given registry's metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
