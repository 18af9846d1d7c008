package testutil

import (
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// FlowBuilder provides a fluent helper for constructing flows in tests.
// Example:
//
//	flow := NewFlowBuilder().
//		Node("a", "echo").
//		Node("b", "echo").
//		Edge("e1", "a", "out", "b", "in").
//		Build()
//
// Timestamps are fixed so built flows compare stably across runs.
type FlowBuilder struct {
	flow core.Flow
}

// NewFlowBuilder creates a builder with id "flow-1", name "test flow",
// version "1.0.0" and fixed meta timestamps.
func NewFlowBuilder() *FlowBuilder {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	return &FlowBuilder{flow: core.Flow{
		ID:      "flow-1",
		Name:    "test flow",
		Version: "1.0.0",
		Meta:    core.FlowMeta{Created: now, Modified: now},
	}}
}

// ID overrides the flow id (chainable).
func (b *FlowBuilder) ID(id string) *FlowBuilder { b.flow.ID = id; return b }

// Name overrides the flow name (chainable).
func (b *FlowBuilder) Name(name string) *FlowBuilder { b.flow.Name = name; return b }

// Version overrides the flow version (chainable).
func (b *FlowBuilder) Version(v string) *FlowBuilder { b.flow.Version = v; return b }

// Description sets the flow description (chainable).
func (b *FlowBuilder) Description(d string) *FlowBuilder { b.flow.Description = d; return b }

// Meta overrides both timestamps (chainable).
func (b *FlowBuilder) Meta(created, modified time.Time) *FlowBuilder {
	b.flow.Meta = core.FlowMeta{Created: created, Modified: modified}
	return b
}

// Node appends a node of the given type at version 1.0.0 with empty config
// (chainable).
func (b *FlowBuilder) Node(id, nodeType string) *FlowBuilder {
	return b.NodeWithData(id, nodeType, map[string]any{})
}

// NodeWithData appends a node carrying the given config payload (chainable).
func (b *FlowBuilder) NodeWithData(id, nodeType string, data map[string]any) *FlowBuilder {
	b.flow.Nodes = append(b.flow.Nodes, core.FlowNode{
		ID:      id,
		Type:    nodeType,
		Data:    data,
		Version: "1.0.0",
	})

	return b
}

// NodeVersion sets the version of the most recently added node (chainable).
func (b *FlowBuilder) NodeVersion(v string) *FlowBuilder {
	if len(b.flow.Nodes) > 0 {
		b.flow.Nodes[len(b.flow.Nodes)-1].Version = v
	}

	return b
}

// Handles sets the port snapshot of the most recently added node (chainable).
func (b *FlowBuilder) Handles(h core.Handles) *FlowBuilder {
	if len(b.flow.Nodes) > 0 {
		b.flow.Nodes[len(b.flow.Nodes)-1].Handles = &h
	}

	return b
}

// Edge appends a connection between two node handles (chainable).
func (b *FlowBuilder) Edge(id, source, sourceHandle, target, targetHandle string) *FlowBuilder {
	b.flow.Edges = append(b.flow.Edges, core.Edge{
		ID:           id,
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
		TargetHandle: targetHandle,
	})

	return b
}

// Build constructs the core.Flow value.
func (b *FlowBuilder) Build() *core.Flow {
	return b.flow.Clone()
}
